package notify_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"macroplanner"
	"macroplanner/notify"

	should "github.com/stretchr/testify/assert"
	must "github.com/stretchr/testify/require"
)

type mockDoer struct {
	doFunc func(req *http.Request) (*http.Response, error)
}

func (m *mockDoer) Do(req *http.Request) (*http.Response, error) {
	return m.doFunc(req)
}

func TestPostMessage(t *testing.T) {
	tests := []struct {
		name    string
		doFunc  func(req *http.Request) (*http.Response, error)
		wantErr string
	}{
		{
			name: "success",
			doFunc: func(req *http.Request) (*http.Response, error) {
				return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewBufferString("ok"))}, nil
			},
		},
		{
			name: "failure status",
			doFunc: func(req *http.Request) (*http.Response, error) {
				return &http.Response{StatusCode: http.StatusBadRequest, Status: "400 Bad Request", Body: io.NopCloser(bytes.NewBufferString("bad request"))}, nil
			},
			wantErr: "failed to post message: 400 Bad Request",
		},
		{
			name: "do error",
			doFunc: func(req *http.Request) (*http.Response, error) {
				return nil, errors.New("network error")
			},
			wantErr: "network error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := notify.NewClient("http://hooks.example.com/x", &mockDoer{doFunc: tt.doFunc})
			err := client.PostMessage(context.Background(), "#meals", "week done")
			if tt.wantErr == "" {
				should.NoError(t, err)
			} else {
				must.Error(t, err)
				should.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestPostMessagePayload(t *testing.T) {
	var got map[string]any
	client := notify.NewClient("http://hooks.example.com/x", &mockDoer{
		doFunc: func(req *http.Request) (*http.Response, error) {
			body, err := io.ReadAll(req.Body)
			must.NoError(t, err)
			must.NoError(t, json.Unmarshal(body, &got))
			should.Equal(t, "application/json", req.Header.Get("Content-Type"))
			return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewBufferString("ok"))}, nil
		},
	})

	must.NoError(t, client.PostMessage(context.Background(), "#meals", "week done"))
	should.Equal(t, "#meals", got["channel"])
	should.Equal(t, "week done", got["text"])
}

func TestWeekSummary(t *testing.T) {
	week := &macroplanner.WeeklyPlan{
		WeekStartDate: "2026-03-02",
		SessionID:     "abc",
		Days: []*macroplanner.DayPlan{{
			Date: "2026-03-02",
			Meals: []macroplanner.Meal{{
				Type:  macroplanner.MealBreakfast,
				Items: []macroplanner.FoodItem{{Name: "oats", Quantity: 40, Unit: "g", Calories: 156, ProteinGrams: 6.8}},
			}},
		}},
	}
	msg := notify.WeekSummary(week, macroplanner.NutritionTargets{CaloriesPerDay: 2000, ProteinGrams: 150})
	should.True(t, strings.Contains(msg, "2026-03-02"))
	should.True(t, strings.Contains(msg, "156"))
	should.True(t, strings.Contains(msg, "2000"))
}

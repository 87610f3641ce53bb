package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"passenger-flow-api/models"
	"passenger-flow-api/services"

	"github.com/gin-gonic/gin"
)

type recordingPublisher struct {
	channel  string
	messages []interface{}
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, channel string, msg interface{}) error {
	p.channel = channel
	p.messages = append(p.messages, msg)
	return p.err
}

func newPassengerRouter(s *memStore, pub Publisher) *gin.Engine {
	h := NewPassengerHandler(s, pub)
	h.now = func() time.Time { return handlerNow }

	r := gin.New()
	r.GET("/api/passengers", h.List)
	r.GET("/api/passengers/:id", h.Get)
	r.POST("/api/passengers", h.Create)
	r.PUT("/api/passengers/:id", h.Update)
	r.DELETE("/api/passengers/:id", h.Delete)
	return r
}

func intp(v int) *int { return &v }

func TestCreatePassengerCount(t *testing.T) {
	tests := []struct {
		name string
		body CreatePassengerCountRequest
		want int
	}{
		{"valid", CreatePassengerCountRequest{BusID: 1, StopID: "K", Entered: intp(12), Exited: intp(3)}, http.StatusCreated},
		{"zero counts", CreatePassengerCountRequest{BusID: 1, StopID: "K", Entered: intp(0), Exited: intp(0)}, http.StatusCreated},
		{"negative entered", CreatePassengerCountRequest{BusID: 1, StopID: "K", Entered: intp(-1), Exited: intp(0)}, http.StatusBadRequest},
		{"too many exited", CreatePassengerCountRequest{BusID: 1, StopID: "K", Entered: intp(0), Exited: intp(101)}, http.StatusBadRequest},
		{"missing counts", CreatePassengerCountRequest{BusID: 1, StopID: "K"}, http.StatusBadRequest},
		{"missing stop", CreatePassengerCountRequest{BusID: 1, Entered: intp(1), Exited: intp(1)}, http.StatusBadRequest},
		{"unknown bus", CreatePassengerCountRequest{BusID: 99, StopID: "K", Entered: intp(1), Exited: intp(1)}, http.StatusBadRequest},
		{"unknown stop", CreatePassengerCountRequest{BusID: 1, StopID: "Z", Entered: intp(1), Exited: intp(1)}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newMemStore()
			pub := &recordingPublisher{}
			w := perform(newPassengerRouter(s, pub), http.MethodPost, "/api/passengers", tt.body)

			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
			if tt.want != http.StatusCreated {
				if len(pub.messages) != 0 {
					t.Error("rejected reading was published")
				}
				return
			}

			var got models.PassengerCount
			decode(t, w, &got)
			if got.ID == 0 || got.RouteID != "7A" || !got.Timestamp.Equal(handlerNow) {
				t.Errorf("created = %+v", got)
			}
			if pub.channel != services.LiveChannel || len(pub.messages) != 1 {
				t.Errorf("published %d messages on %q", len(pub.messages), pub.channel)
			}
		})
	}
}

func TestCreatePassengerCountPublishFailureStillCreates(t *testing.T) {
	s := newMemStore()
	pub := &recordingPublisher{err: errors.New("redis down")}
	body := CreatePassengerCountRequest{BusID: 2, StopID: "L", Entered: intp(5), Exited: intp(1)}

	w := perform(newPassengerRouter(s, pub), http.MethodPost, "/api/passengers", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}
	if len(s.counts) != 1 {
		t.Errorf("stored %d readings, want 1", len(s.counts))
	}
}

func TestListPassengerCountsPagination(t *testing.T) {
	s := newMemStore()
	for i := 0; i < 5; i++ {
		s.seed(models.PassengerCount{BusID: 1, StopID: "K", Entered: i, Timestamp: handlerNow.Add(-time.Duration(i) * time.Minute)})
	}
	s.seed(models.PassengerCount{BusID: 2, StopID: "L", Entered: 9, Timestamp: handlerNow.Add(-time.Hour)})
	r := newPassengerRouter(s, nil)

	type page struct {
		Data       []models.PassengerCount `json:"data"`
		NextCursor string                  `json:"next_cursor"`
		HasMore    bool                    `json:"has_more"`
	}

	var first page
	decode(t, perform(r, http.MethodGet, "/api/passengers?limit=4", nil), &first)
	if len(first.Data) != 4 || !first.HasMore || first.NextCursor == "" {
		t.Fatalf("first page = %d rows, has_more=%v, cursor=%q", len(first.Data), first.HasMore, first.NextCursor)
	}
	if !first.Data[0].Timestamp.Equal(handlerNow) {
		t.Errorf("first row at %v, want newest", first.Data[0].Timestamp)
	}

	var second page
	decode(t, perform(r, http.MethodGet, "/api/passengers?limit=4&before="+first.NextCursor, nil), &second)
	if len(second.Data) != 2 || second.HasMore || second.NextCursor != "" {
		t.Errorf("second page = %d rows, has_more=%v, cursor=%q", len(second.Data), second.HasMore, second.NextCursor)
	}

	var filtered page
	decode(t, perform(r, http.MethodGet, "/api/passengers?bus_id=2", nil), &filtered)
	if len(filtered.Data) != 1 || filtered.Data[0].BusID != 2 {
		t.Errorf("bus filter returned %+v", filtered.Data)
	}
	if s.lastList.Limit != DefaultLimit+1 {
		t.Errorf("store limit = %d, want %d", s.lastList.Limit, DefaultLimit+1)
	}

	if w := perform(r, http.MethodGet, "/api/passengers?bus_id=x", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad bus_id status = %d, want 400", w.Code)
	}
}

func TestListPassengerCountsEmpty(t *testing.T) {
	w := perform(newPassengerRouter(newMemStore(), nil), http.MethodGet, "/api/passengers", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got map[string]json.RawMessage
	decode(t, w, &got)
	if string(got["data"]) != "[]" {
		t.Errorf("data = %s, want []", got["data"])
	}
}

func TestGetAndDeletePassengerCount(t *testing.T) {
	s := newMemStore()
	s.seed(models.PassengerCount{BusID: 1, StopID: "K", Entered: 3, Timestamp: handlerNow})
	r := newPassengerRouter(s, nil)

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/api/passengers/1", http.StatusOK},
		{http.MethodGet, "/api/passengers/2", http.StatusNotFound},
		{http.MethodGet, "/api/passengers/x", http.StatusBadRequest},
		{http.MethodDelete, "/api/passengers/1", http.StatusNoContent},
		{http.MethodDelete, "/api/passengers/1", http.StatusNotFound},
		{http.MethodGet, "/api/passengers/1", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s %s", tt.method, tt.path), func(t *testing.T) {
			if w := perform(r, tt.method, tt.path, nil); w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestUpdatePassengerCount(t *testing.T) {
	recorded := handlerNow.Add(-2 * time.Hour)
	tests := []struct {
		name string
		path string
		body CreatePassengerCountRequest
		want int
	}{
		{"valid", "/api/passengers/1", CreatePassengerCountRequest{BusID: 1, StopID: "L", Entered: intp(8), Exited: intp(2)}, http.StatusOK},
		{"unknown reading", "/api/passengers/99", CreatePassengerCountRequest{BusID: 1, StopID: "L", Entered: intp(8), Exited: intp(2)}, http.StatusNotFound},
		{"unknown bus", "/api/passengers/1", CreatePassengerCountRequest{BusID: 99, StopID: "L", Entered: intp(8), Exited: intp(2)}, http.StatusBadRequest},
		{"negative exited", "/api/passengers/1", CreatePassengerCountRequest{BusID: 1, StopID: "L", Entered: intp(8), Exited: intp(-2)}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newMemStore()
			s.seed(models.PassengerCount{BusID: 2, StopID: "K", Entered: 1, Timestamp: recorded})

			w := perform(newPassengerRouter(s, nil), http.MethodPut, tt.path, tt.body)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
			if tt.want != http.StatusOK {
				if s.counts[1].Entered != 1 {
					t.Errorf("rejected update changed the reading: %+v", s.counts[1])
				}
				return
			}

			var got models.PassengerCount
			decode(t, w, &got)
			if got.ID != 1 || got.RouteID != "7A" || !got.Timestamp.Equal(recorded) {
				t.Errorf("updated = %+v", got)
			}
			if stored := s.counts[1]; stored.BusID != 1 || stored.StopID != "L" || stored.Entered != 8 {
				t.Errorf("stored = %+v", stored)
			}
		})
	}
}

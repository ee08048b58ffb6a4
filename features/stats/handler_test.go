package stats

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"paperlib/internal/lifecycle"
)

type MockDocumentRepo struct{ mock.Mock }

func (m *MockDocumentRepo) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockDocumentRepo) CountByStatus(ctx context.Context) (map[lifecycle.Status]int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[lifecycle.Status]int), args.Error(1)
}

type MockCounter struct{ mock.Mock }

func (m *MockCounter) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func TestHandler_GetStats_Table(t *testing.T) {
	tests := []struct {
		name       string
		setupMocks func(*MockDocumentRepo, *MockCounter, *MockCounter)
		wantStatus int
		checkBody  func(*testing.T, map[string]interface{})
	}{
		{
			name: "Success",
			setupMocks: func(d *MockDocumentRepo, f *MockCounter, c *MockCounter) {
				d.On("Count", mock.Anything).Return(12, nil)
				d.On("CountByStatus", mock.Anything).Return(map[lifecycle.Status]int{lifecycle.StatusComplete: 10, lifecycle.StatusIncomplete: 2}, nil)
				f.On("Count", mock.Anything).Return(1, nil)
				c.On("Count", mock.Anything).Return(340, nil)
			},
			wantStatus: http.StatusOK,
			checkBody: func(t *testing.T, body map[string]interface{}) {
				data := body["data"].(map[string]interface{})
				assert.EqualValues(t, 12, data["documents"])
				assert.EqualValues(t, 340, data["chunks"])
				assert.EqualValues(t, 1, data["open_flags"])
				byStatus := data["by_status"].(map[string]interface{})
				assert.EqualValues(t, 10, byStatus["complete"])
				assert.EqualValues(t, 0, byStatus["summarized"])
				assert.Len(t, byStatus, len(lifecycle.Statuses))
			},
		},
		{
			name: "ChunkIndexDown",
			setupMocks: func(d *MockDocumentRepo, f *MockCounter, c *MockCounter) {
				d.On("Count", mock.Anything).Return(12, nil)
				d.On("CountByStatus", mock.Anything).Return(map[lifecycle.Status]int{}, nil)
				c.On("Count", mock.Anything).Return(0, errors.New("weaviate unreachable"))
			},
			wantStatus: http.StatusInternalServerError,
			checkBody: func(t *testing.T, body map[string]interface{}) {
				errObj := body["error"].(map[string]interface{})
				assert.Equal(t, "INTERNAL_ERROR", errObj["code"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, f, c := new(MockDocumentRepo), new(MockCounter), new(MockCounter)
			tt.setupMocks(d, f, c)

			h := NewHandler(d, f, c)
			w := httptest.NewRecorder()
			h.GetStats(w, httptest.NewRequest(http.MethodGet, "/stats", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			var body map[string]interface{}
			assert.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			tt.checkBody(t, body)
		})
	}
}

package settings_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"paperlib/internal/settings"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Get(ctx context.Context) (*settings.Settings, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settings.Settings), args.Error(1)
}

func (m *MockRepository) Update(ctx context.Context, s *settings.Settings) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func TestHandler_GetSettings(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mockRepo := new(MockRepository)
		mockRepo.On("Get", mock.Anything).Return(&settings.Settings{GeminiAPIKey: "secret", SearchTopK: 7}, nil)
		handler := settings.NewHandler(settings.NewService(mockRepo, ""))

		w := httptest.NewRecorder()
		handler.GetSettings(w, httptest.NewRequest(http.MethodGet, "/settings", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotContains(t, w.Body.String(), "secret")
		var resp struct {
			Data settings.View `json:"data"`
		}
		assert.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, settings.View{GeminiAPIKeySet: true, SearchTopK: 7, OversampleFactor: 10}, resp.Data)
	})

	t.Run("RepoError", func(t *testing.T) {
		mockRepo := new(MockRepository)
		mockRepo.On("Get", mock.Anything).Return(nil, errors.New("db down"))
		handler := settings.NewHandler(settings.NewService(mockRepo, ""))

		w := httptest.NewRecorder()
		handler.GetSettings(w, httptest.NewRequest(http.MethodGet, "/settings", nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestHandler_UpdateSettings(t *testing.T) {
	stored := settings.Settings{GeminiAPIKey: "db-key", SearchTopK: 3, OversampleFactor: 4}
	tests := []struct {
		name       string
		body       string
		wantStatus int
		want       *settings.Settings
	}{
		{"Full", `{"gemini_api_key":" new-key ","search_top_k":6,"oversample_factor":12}`, http.StatusOK,
			&settings.Settings{GeminiAPIKey: "new-key", SearchTopK: 6, OversampleFactor: 12}},
		{"PartialKeepsKey", `{"search_top_k":6}`, http.StatusOK,
			&settings.Settings{GeminiAPIKey: "db-key", SearchTopK: 6, OversampleFactor: 4}},
		{"Negative", `{"search_top_k":-1}`, http.StatusBadRequest, nil},
		{"NegativeFactor", `{"oversample_factor":-2}`, http.StatusBadRequest, nil},
		{"Malformed", `{`, http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cur := stored
			mockRepo := new(MockRepository)
			mockRepo.On("Get", mock.Anything).Return(&cur, nil)
			mockRepo.On("Update", mock.Anything, mock.Anything).Return(nil)
			handler := settings.NewHandler(settings.NewService(mockRepo, ""))

			w := httptest.NewRecorder()
			handler.UpdateSettings(w, httptest.NewRequest(http.MethodPut, "/settings", bytes.NewBufferString(tt.body)))

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.want != nil {
				mockRepo.AssertCalled(t, "Update", mock.Anything, tt.want)
				assert.NotContains(t, w.Body.String(), tt.want.GeminiAPIKey)
			} else {
				mockRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestHandler_UpdateSettings_RepoError(t *testing.T) {
	mockRepo := new(MockRepository)
	mockRepo.On("Get", mock.Anything).Return(&settings.Settings{}, nil)
	mockRepo.On("Update", mock.Anything, mock.Anything).Return(errors.New("db down"))
	handler := settings.NewHandler(settings.NewService(mockRepo, ""))

	w := httptest.NewRecorder()
	handler.UpdateSettings(w, httptest.NewRequest(http.MethodPut, "/settings", bytes.NewBufferString(`{"search_top_k":2}`)))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestService_ApplyResetsToDefaults(t *testing.T) {
	svc := settings.NewService(settings.NewMemoryRepo(settings.Settings{SearchTopK: 3}), "env-key")
	zero := 0

	got, err := svc.Apply(context.Background(), settings.Patch{SearchTopK: &zero})
	assert.NoError(t, err)
	assert.Equal(t, settings.Settings{GeminiAPIKey: "env-key", SearchTopK: 5, OversampleFactor: 10}, *got)
}

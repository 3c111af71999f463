package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"token-gate-go/internal/database"
	"token-gate-go/internal/models"
	"token-gate-go/internal/store"
)

type stubPlatform struct {
	invite    string
	inviteErr error
	revoked   []int64
}

func (p *stubPlatform) IssueInviteLink(_ context.Context, _ int64, _ time.Duration, _ int) (string, error) {
	return p.invite, p.inviteErr
}

func (p *stubPlatform) RevokeMember(_ context.Context, _, userID int64) error {
	p.revoked = append(p.revoked, userID)
	return nil
}

func (p *stubPlatform) Notify(_ context.Context, _ int64, _ string) error {
	return nil
}

func setupServer(t *testing.T, platform *stubPlatform) (*Server, store.TransferStore) {
	t.Helper()
	dbService, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:         ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { dbService.Close() })

	server := NewServer(dbService, platform, nil, models.VerifierConfig{
		Mint:         "MintAAA",
		InviteExpiry: 12 * time.Hour,
		GroupID:      -100200,
	})
	return server, dbService
}

func doRequest(server *Server, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "127.0.0.1:54321"
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	recorder := httptest.NewRecorder()
	server.Router().ServeHTTP(recorder, req)
	return recorder
}

func TestHealth(t *testing.T) {
	server, _ := setupServer(t, &stubPlatform{})
	recorder := doRequest(server, http.MethodGet, "/health", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", recorder.Code)
	}
}

func TestLocalOnlyRejectsRemoteClients(t *testing.T) {
	server, _ := setupServer(t, &stubPlatform{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "203.0.113.9:44000"
	recorder := httptest.NewRecorder()
	server.Router().ServeHTTP(recorder, req)

	if recorder.Code != http.StatusForbidden {
		t.Fatalf("Expected 403 for non-loopback client, got %d", recorder.Code)
	}
}

func TestCreateGrantIssuesInvite(t *testing.T) {
	platform := &stubPlatform{invite: "https://chat.example/join/xyz"}
	server, dbService := setupServer(t, platform)

	recorder := doRequest(server, http.MethodPost, "/grants", `{"user_id": 101, "wallet": "Payer1"}`)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var response struct {
		SessionKey int64  `json:"session_key"`
		InviteLink string `json:"invite_link"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("Unparseable response: %v", err)
	}
	if response.SessionKey != -101 {
		t.Errorf("Expected synthetic session key -101, got %d", response.SessionKey)
	}
	if response.InviteLink != "https://chat.example/join/xyz" {
		t.Errorf("Expected invite link in response, got %q", response.InviteLink)
	}

	records, err := dbService.FindConfirmedExcluding(context.Background(), "MintAAA", nil)
	if err != nil {
		t.Fatalf("FindConfirmedExcluding failed: %v", err)
	}
	if len(records) != 1 || records[0].UserID != 101 || records[0].Source != "Payer1" {
		t.Fatalf("Expected one manual grant for user 101, got %+v", records)
	}
}

func TestCreateGrantConflictOnDuplicate(t *testing.T) {
	server, _ := setupServer(t, &stubPlatform{invite: "link"})

	if recorder := doRequest(server, http.MethodPost, "/grants", `{"user_id": 101, "wallet": "Payer1"}`); recorder.Code != http.StatusCreated {
		t.Fatalf("First grant failed: %d", recorder.Code)
	}
	recorder := doRequest(server, http.MethodPost, "/grants", `{"user_id": 101, "wallet": "Payer1"}`)
	if recorder.Code != http.StatusConflict {
		t.Fatalf("Expected 409 for duplicate manual grant, got %d", recorder.Code)
	}
}

func TestCreateGrantSurvivesInviteFailure(t *testing.T) {
	platform := &stubPlatform{inviteErr: errors.New("platform down")}
	server, dbService := setupServer(t, platform)

	recorder := doRequest(server, http.MethodPost, "/grants", `{"user_id": 101, "wallet": "Payer1"}`)
	if recorder.Code != http.StatusAccepted {
		t.Fatalf("Expected 202 when invite fails, got %d", recorder.Code)
	}

	records, err := dbService.FindConfirmedExcluding(context.Background(), "MintAAA", nil)
	if err != nil {
		t.Fatalf("FindConfirmedExcluding failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected the grant to be recorded despite invite failure, got %+v", records)
	}
}

func TestDeleteGrantRevokesAndRemoves(t *testing.T) {
	platform := &stubPlatform{invite: "link"}
	server, dbService := setupServer(t, platform)

	if recorder := doRequest(server, http.MethodPost, "/grants", `{"user_id": 101, "wallet": "Payer1"}`); recorder.Code != http.StatusCreated {
		t.Fatalf("Grant setup failed: %d", recorder.Code)
	}

	recorder := doRequest(server, http.MethodDelete, "/grants/-101", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if len(platform.revoked) != 1 || platform.revoked[0] != 101 {
		t.Errorf("Expected user 101 revoked, got %v", platform.revoked)
	}

	records, err := dbService.FindConfirmedExcluding(context.Background(), "MintAAA", nil)
	if err != nil {
		t.Fatalf("FindConfirmedExcluding failed: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("Expected no grants after deletion, got %+v", records)
	}
}

func TestOpenChallengeUnavailableWithoutVerifier(t *testing.T) {
	server, _ := setupServer(t, &stubPlatform{})
	recorder := doRequest(server, http.MethodPost, "/challenges", `{"session_key": 7, "user_id": 101}`)
	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503 without a verifier, got %d", recorder.Code)
	}
}

func TestDeleteGrantUnknownSession(t *testing.T) {
	server, _ := setupServer(t, &stubPlatform{})
	recorder := doRequest(server, http.MethodDelete, "/grants/42", "")
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 for unknown session, got %d", recorder.Code)
	}
}

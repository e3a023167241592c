package cmd

import (
	"encoding/json"
	"net/http"
	"net/url"
	"testing"
)

const (
	fbConnected    = `{"connected": true, "account_name": "Acme Marketing", "page_count": 3, "connected_at": "2026-01-01T09:00:00Z"}`
	fbDisconnected = `{"connected": false, "page_count": 0}`
)

func TestFacebookStatusConnected(t *testing.T) {
	handler := newRouteHandler().On("GET", "/api/facebook/status", jsonResponse(200, fbConnected))
	setupTestEnvWithHandler(t, handler)

	stdout, _, err := runCLI(t, "facebook", "status")
	if err != nil {
		t.Fatalf("facebook status: %v", err)
	}
	assertContains(t, stdout, "Facebook: connected")
	assertContains(t, stdout, "Acme Marketing")
	assertContains(t, stdout, "Pages: 3")
}

func TestFacebookStatusJSON(t *testing.T) {
	handler := newRouteHandler().On("GET", "/api/facebook/status", jsonResponse(200, fbDisconnected))
	setupTestEnvWithHandler(t, handler)

	stdout, _, err := runCLI(t, "fb", "status", "-o", "json")
	if err != nil {
		t.Fatalf("facebook status: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(stdout), &payload); err != nil {
		t.Fatalf("decode: %v\n%s", err, stdout)
	}
	if payload["state"] != "disconnected" {
		t.Errorf("state = %v, want disconnected", payload["state"])
	}
}

func TestFacebookConnect(t *testing.T) {
	var callback map[string]string
	handler := newRouteHandler().
		On("GET", "/api/facebook/status", jsonResponse(200, fbDisconnected)).
		On("GET", "/api/facebook/oauth-url", func(w http.ResponseWriter, r *http.Request) {
			redirect := r.URL.Query().Get("redirect_uri")
			if redirect == "" {
				t.Error("redirect_uri missing")
			}
			// Play the browser: follow the provider redirect back to the CLI.
			go func() {
				q := url.Values{"code": {"auth-code"}, "state": {"st-1"}}
				resp, err := http.Get(redirect + "?" + q.Encode())
				if err == nil {
					_ = resp.Body.Close()
				}
			}()
			jsonResponse(200, `{"url": "https://www.facebook.com/dialog/oauth?x=1", "state": "st-1"}`)(w, r)
		}).
		On("POST", "/api/facebook/callback", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewDecoder(r.Body).Decode(&callback)
			jsonResponse(200, fbConnected)(w, r)
		})
	setupTestEnvWithHandler(t, handler)

	stdout, stderr, err := runCLI(t, "facebook", "connect", "--wait-timeout", "10s")
	if err != nil {
		t.Fatalf("facebook connect: %v\n%s", err, stderr)
	}
	assertContains(t, stderr, "https://www.facebook.com/dialog/oauth")
	assertContains(t, stdout, "Facebook: connected")

	if callback["code"] != "auth-code" || callback["state"] != "st-1" {
		t.Errorf("callback body = %v", callback)
	}
	if callback["redirect_uri"] == "" {
		t.Error("callback must carry the redirect URI used for the authorization")
	}
}

func TestFacebookConnectProviderDenied(t *testing.T) {
	handler := newRouteHandler().
		On("GET", "/api/facebook/status", jsonResponse(200, fbDisconnected)).
		On("GET", "/api/facebook/oauth-url", func(w http.ResponseWriter, r *http.Request) {
			redirect := r.URL.Query().Get("redirect_uri")
			go func() {
				q := url.Values{"error": {"access_denied"}, "error_description": {"Permissions error"}}
				resp, err := http.Get(redirect + "?" + q.Encode())
				if err == nil {
					_ = resp.Body.Close()
				}
			}()
			jsonResponse(200, `{"url": "https://www.facebook.com/dialog/oauth", "state": "st-2"}`)(w, r)
		})
	setupTestEnvWithHandler(t, handler)

	_, stderr, err := runCLI(t, "facebook", "connect", "--wait-timeout", "10s")
	if err == nil {
		t.Fatal("expected provider error")
	}
	assertContains(t, stderr, "Permissions error")
	if handler.count("POST /api/facebook/callback") != 0 {
		t.Error("a denied authorization must not be exchanged")
	}
}

func TestFacebookConnectWhenConnected(t *testing.T) {
	handler := newRouteHandler().On("GET", "/api/facebook/status", jsonResponse(200, fbConnected))
	setupTestEnvWithHandler(t, handler)

	_, _, err := runCLI(t, "facebook", "connect")
	if err == nil {
		t.Fatal("expected error when already connected")
	}
	if code := ExitCode(err); code != exitState {
		t.Errorf("exit code = %d, want %d", code, exitState)
	}
	if handler.count("GET /api/facebook/oauth-url") != 0 {
		t.Error("no authorization should start while connected")
	}
}

func TestFacebookDisconnectWithYes(t *testing.T) {
	handler := newRouteHandler().
		On("GET", "/api/facebook/status", jsonResponse(200, fbConnected)).
		On("DELETE", "/api/facebook/connection", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	setupTestEnvWithHandler(t, handler)

	stdout, _, err := runCLI(t, "facebook", "disconnect", "--yes")
	if err != nil {
		t.Fatalf("facebook disconnect: %v", err)
	}
	assertContains(t, stdout, "Facebook disconnected.")
	if handler.count("DELETE /api/facebook/connection") != 1 {
		t.Error("expected one DELETE request")
	}
}

func TestFacebookDisconnectNeedsConfirmation(t *testing.T) {
	handler := newRouteHandler().
		On("GET", "/api/facebook/status", jsonResponse(200, fbConnected)).
		On("DELETE", "/api/facebook/connection", jsonResponse(204, ``))
	setupTestEnvWithHandler(t, handler)

	_, stderr, err := runCLI(t, "facebook", "disconnect", "--no-input")
	if err == nil {
		t.Fatal("expected error without confirmation")
	}
	assertContains(t, stderr, "--yes")
	if handler.count("DELETE /api/facebook/connection") != 0 {
		t.Error("no request may be sent before confirmation")
	}
}

func TestFacebookDisconnectWhenDisconnected(t *testing.T) {
	handler := newRouteHandler().On("GET", "/api/facebook/status", jsonResponse(200, fbDisconnected))
	setupTestEnvWithHandler(t, handler)

	_, _, err := runCLI(t, "facebook", "disconnect", "--yes")
	if code := ExitCode(err); code != exitState {
		t.Errorf("exit code = %d, want %d (err %v)", code, exitState, err)
	}
}

func TestFacebookSyncStatuses(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus string
		wantErr    bool
		wantOut    string
	}{
		{
			name:       "success",
			body:       `{"pages_synced": 3, "pages_total": 3, "sync_status": "success"}`,
			wantStatus: "success",
			wantOut:    "Synced 3 of 3 page(s).",
		},
		{
			name:       "counts override server status",
			body:       `{"pages_synced": 2, "pages_total": 3, "sync_status": "success", "failed_pages": ["Acme Outlet"]}`,
			wantStatus: "partial",
			wantOut:    "failed: Acme Outlet",
		},
		{
			name:       "nothing to sync is success",
			body:       `{"pages_synced": 0, "pages_total": 0}`,
			wantStatus: "success",
			wantOut:    "Synced 0 of 0 page(s).",
		},
		{
			name:       "no pages synced",
			body:       `{"pages_synced": 0, "pages_total": 2, "sync_status": "partial"}`,
			wantStatus: "error",
			wantErr:    true,
			wantOut:    "Sync failed: 0 of 2 page(s).",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := newRouteHandler().
				On("GET", "/api/facebook/status", jsonResponse(200, fbConnected)).
				On("POST", "/api/facebook/pages/sync", jsonResponse(200, tt.body))
			setupTestEnvWithHandler(t, handler)

			stdout, _, err := runCLI(t, "facebook", "sync")
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			assertContains(t, stdout, tt.wantOut)

			jsonOut, _, _ := runCLI(t, "facebook", "sync", "-o", "json")
			var result map[string]any
			if err := json.Unmarshal([]byte(jsonOut), &result); err != nil {
				t.Fatalf("decode: %v\n%s", err, jsonOut)
			}
			if result["sync_status"] != tt.wantStatus {
				t.Errorf("sync_status = %v, want %s", result["sync_status"], tt.wantStatus)
			}
			if tt.wantStatus == "error" && result["error_message"] != "no pages were synced" {
				t.Errorf("error_message = %v", result["error_message"])
			}
		})
	}
}

func TestFacebookSyncWhenDisconnected(t *testing.T) {
	handler := newRouteHandler().
		On("GET", "/api/facebook/status", jsonResponse(200, fbDisconnected)).
		On("POST", "/api/facebook/pages/sync", jsonResponse(200, `{}`))
	setupTestEnvWithHandler(t, handler)

	_, _, err := runCLI(t, "facebook", "sync")
	if code := ExitCode(err); code != exitState {
		t.Errorf("exit code = %d, want %d", code, exitState)
	}
	if handler.count("POST /api/facebook/pages/sync") != 0 {
		t.Error("sync must not be sent while disconnected")
	}
}

func TestFacebookDisconnectDryRun(t *testing.T) {
	handler := newRouteHandler().
		On("GET", "/api/facebook/status", jsonResponse(200, fbConnected)).
		On("DELETE", "/api/facebook/connection", jsonResponse(204, ``))
	setupTestEnvWithHandler(t, handler)

	stdout, _, err := runCLI(t, "facebook", "disconnect", "--dry-run")
	if err != nil {
		t.Fatalf("facebook disconnect --dry-run: %v", err)
	}
	assertContains(t, stdout, "DELETE /api/facebook/connection")
	if handler.count("DELETE /api/facebook/connection") != 0 {
		t.Error("dry run must not disconnect")
	}
}

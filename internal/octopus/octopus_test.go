package octopus

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSpaceByNameExactMatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/spaces" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("partialName"); got != "Default" {
			t.Errorf("expected partialName=Default, got %q", got)
		}
		if got := r.Header.Get("X-Octopus-ApiKey"); got != "API-TEST" {
			t.Errorf("expected api key header, got %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"Items": []map[string]string{
				{"Id": "Spaces-2", "Name": "Default Copy"},
				{"Id": "Spaces-1", "Name": "Default"},
			},
		})
	}))
	defer server.Close()

	client := NewClient(0)
	creds := Credentials{ServerURL: server.URL, APIKey: "API-TEST"}

	space, err := client.SpaceByName(context.Background(), creds, "Default")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if space.ID != "Spaces-1" {
		t.Errorf("partial matches must be filtered to the exact name, got %s", space.ID)
	}
}

func TestSpaceByNameNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"Items": []map[string]string{{"Id": "Spaces-2", "Name": "Default Copy"}},
		})
	}))
	defer server.Close()

	client := NewClient(0)
	creds := Credentials{ServerURL: server.URL, APIKey: "API-TEST"}

	if _, err := client.SpaceByName(context.Background(), creds, "Default"); err == nil {
		t.Fatal("expected an error for a name with no exact match")
	}
}

func TestRunbookLookupChain(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/Spaces-1/projects":
			json.NewEncoder(w).Encode(map[string]any{
				"Items": []map[string]string{{"Id": "Projects-1", "Name": "Deploy WebApp"}},
			})
		case "/api/Spaces-1/projects/Projects-1/runbooks":
			json.NewEncoder(w).Encode(map[string]any{
				"Items": []map[string]string{{"Id": "Runbooks-1", "Name": "Restart Service", "ProjectId": "Projects-1"}},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewClient(0)
	creds := Credentials{ServerURL: server.URL, APIKey: "API-TEST"}

	project, err := client.ProjectByName(context.Background(), creds, "Spaces-1", "Deploy WebApp")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	runbook, err := client.RunbookByName(context.Background(), creds, "Spaces-1", project.ID, "Restart Service")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if runbook.ID != "Runbooks-1" {
		t.Errorf("unexpected runbook id %s", runbook.ID)
	}
}

func TestRecentRunsDefaultsTake(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("take"); got != "10" {
			t.Errorf("expected take=10, got %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"Items": []map[string]any{
				{"Id": "RunbookRuns-1", "EnvironmentName": "Production", "State": "Success"},
			},
		})
	}))
	defer server.Close()

	client := NewClient(0)
	creds := Credentials{ServerURL: server.URL, APIKey: "API-TEST"}

	runs, err := client.RecentRuns(context.Background(), creds, "Spaces-1", "Runbooks-1", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runs) != 1 || runs[0].State != "Success" {
		t.Errorf("unexpected runs %+v", runs)
	}
}

func TestErrorStatusSurfaced(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(0)
	creds := Credentials{ServerURL: server.URL, APIKey: "API-BAD"}

	if _, err := client.SpaceByName(context.Background(), creds, "Default"); err == nil {
		t.Fatal("expected an error for a 401 response")
	}
}

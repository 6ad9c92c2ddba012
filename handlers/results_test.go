// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danielhkuo/live-tally/models"
	"github.com/danielhkuo/live-tally/testutil"
	"github.com/danielhkuo/live-tally/voting"
)

type sseEvent struct {
	name string
	data string
}

// readEvent reads lines up to the next blank line, skipping comments
func readEvent(t *testing.T, r *bufio.Reader) sseEvent {
	t.Helper()
	var ev sseEvent
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("Failed to read event: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if ev.name != "" {
				return ev
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event: "):
			ev.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestResultsStream(t *testing.T) {
	app := setupApp(t, nil)
	pollID, optionIDs := testutil.CreateTestPoll(t, app.db, "Lunch", "Tacos", "Pho")

	mux := http.NewServeMux()
	mux.HandleFunc("GET /polls/{id}/results", NewResultsHandler(app.engine, app.cfg).Stream)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", srv.URL+"/polls/"+pollID+"/results", nil)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to open stream: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Expected text/event-stream, got %s", ct)
	}

	body := bufio.NewReader(resp.Body)

	ev := readEvent(t, body)
	if ev.name != "snapshot" {
		t.Fatalf("Expected snapshot event first, got %q", ev.name)
	}
	var snap models.PollResponse
	if err := json.Unmarshal([]byte(ev.data), &snap); err != nil {
		t.Fatalf("Failed to decode snapshot: %v", err)
	}
	if len(snap.Poll.Options) != 2 {
		t.Errorf("Expected 2 options in snapshot, got %d", len(snap.Poll.Options))
	}

	if _, err := app.engine.Vote(ctx, voting.Request{PollID: pollID, OptionID: optionIDs[1]}); err != nil {
		t.Fatalf("Vote failed: %v", err)
	}

	ev = readEvent(t, body)
	if ev.name != "vote" {
		t.Fatalf("Expected vote event, got %q", ev.name)
	}
	var delta models.DeltaEvent
	if err := json.Unmarshal([]byte(ev.data), &delta); err != nil {
		t.Fatalf("Failed to decode delta: %v", err)
	}
	want := models.DeltaEvent{PollID: pollID, OptionID: optionIDs[1], Votes: 1}
	if delta != want {
		t.Errorf("Expected %+v, got %+v", want, delta)
	}
}

func TestResultsStreamReleasesSubscriber(t *testing.T) {
	app := setupApp(t, nil)
	pollID, _ := testutil.CreateTestPoll(t, app.db, "Lunch", "Tacos")

	mux := http.NewServeMux()
	mux.HandleFunc("GET /polls/{id}/results", NewResultsHandler(app.engine, app.cfg).Stream)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, "GET", srv.URL+"/polls/"+pollID+"/results", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to open stream: %v", err)
	}
	readEvent(t, bufio.NewReader(resp.Body))

	if n := app.broker.Subscribers(pollID); n != 1 {
		t.Fatalf("Expected 1 subscriber, got %d", n)
	}

	cancel()
	resp.Body.Close()

	deadline := time.Now().Add(2 * time.Second)
	for app.broker.Subscribers(pollID) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("Subscriber was not released after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestResultsStreamUnknownPoll(t *testing.T) {
	app := setupApp(t, nil)

	req := testutil.MakeRequest("GET", "/polls/x/results", nil, nil)
	req.SetPathValue("id", "7d1c3f5e-8a4b-4c1e-9f0a-2b3c4d5e6f70")
	w := httptest.NewRecorder()
	NewResultsHandler(app.engine, app.cfg).Stream(w, req)

	testutil.AssertStatus(t, w, http.StatusNotFound)
}

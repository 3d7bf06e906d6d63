// A small smoke-test client that drives a full game flow over the HTTP API:
// create two players, create a game, join both, start it and submit a turn.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
)

var (
	serverURL = flag.String("server", "http://localhost:8080", "turn server base URL")
	gameID    = flag.String("game", "", "game id to create (empty picks a pooled name)")
)

func call(method, path, token string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequest(method, *serverURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var errBody map[string]string
		json.NewDecoder(resp.Body).Decode(&errBody)
		return fmt.Errorf("%s %s: %s (%s)", method, path, resp.Status, errBody["error"])
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func sessionFor(playerID string) string {
	var resp map[string]string
	err := call("POST", "/api/sessions", "", map[string]any{"player_id": playerID}, &resp)
	if err != nil {
		log.Fatalf("create session for %s: %v", playerID, err)
	}
	return resp["session_token"]
}

func main() {
	flag.Parse()

	for _, id := range []string{"smoke-alice", "smoke-bob"} {
		err := call("POST", "/api/players", "", map[string]string{"player_id": id}, nil)
		if err != nil {
			log.Printf("create player %s: %v (may already exist)", id, err)
		}
	}

	var created struct {
		GameID string `json:"game_id"`
	}
	err := call("POST", "/api/games", "", map[string]any{
		"game_id":  *gameID,
		"settings": map[string]int{"max_players": 2, "turn_interval": 60},
	}, &created)
	if err != nil {
		log.Fatalf("create game: %v", err)
	}
	log.Printf("created game %q", created.GameID)

	aliceToken := sessionFor("smoke-alice")
	bobToken := sessionFor("smoke-bob")

	gamePath := "/api/games/" + created.GameID
	if err := call("POST", gamePath+"/join", aliceToken, map[string]string{"name": "Alice"}, nil); err != nil {
		log.Fatalf("alice join: %v", err)
	}
	if err := call("POST", gamePath+"/join", bobToken, map[string]string{"name": "Bob"}, nil); err != nil {
		log.Fatalf("bob join: %v", err)
	}
	if err := call("POST", gamePath+"/start", aliceToken, map[string]string{}, nil); err != nil {
		log.Fatalf("start game: %v", err)
	}
	log.Printf("game started")

	var submit struct {
		AllSubmitted bool `json:"all_submitted"`
	}
	err = call("POST", gamePath+"/turns", aliceToken, map[string]any{
		"turn_number": 1,
		"actions":     []map[string]any{{"pieceid": 0, "vx": 5, "vy": -5}},
	}, &submit)
	if err != nil {
		log.Fatalf("submit turn: %v", err)
	}
	log.Printf("alice submitted, all_submitted=%v", submit.AllSubmitted)

	var summary map[string]any
	if err := call("GET", gamePath+"/summary", "", nil, &summary); err != nil {
		log.Fatalf("summary: %v", err)
	}
	log.Printf("summary: %v", summary)
}

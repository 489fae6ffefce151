// devicesim exercises the full device protocol against a running server:
// it logs in (auto-registering on first contact), then uploads signed
// telemetry records at a fixed interval.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"time"

	"github.com/google/uuid"

	"lodestar/internal/auth"
	"lodestar/internal/crypto"
	"lodestar/internal/models"
)

var endpoints = map[models.Kind]string{
	models.KindHeartbeat: "/api/v1/heartbeat",
	models.KindLocation:  "/api/v1/location",
	models.KindEvent:     "/api/v1/events",
}

func main() {
	server := flag.String("server", "http://localhost:8081", "base URL of the tracker server")
	device := flag.String("device", "sim-device-1", "device id")
	secret := flag.String("secret", "sim-secret", "device shared secret")
	kindFlag := flag.String("kind", "location", "record kind: heartbeat, location or event")
	count := flag.Int("count", 5, "number of uploads")
	interval := flag.Duration("interval", 2*time.Second, "delay between uploads")
	flag.Parse()

	kind, err := models.ParseKind(*kindFlag)
	if err != nil {
		log.Fatal(err)
	}

	client := &http.Client{Timeout: 10 * time.Second}

	token, err := login(client, *server, *device, *secret)
	if err != nil {
		log.Fatal("login failed: ", err)
	}
	log.Printf("logged in as %s", *device)

	secretHash := crypto.SHA256Hex(*secret)
	path := endpoints[kind]

	for i := 0; i < *count; i++ {
		if i > 0 {
			time.Sleep(*interval)
		}

		body, err := json.Marshal(samplePayload(kind))
		if err != nil {
			log.Fatal(err)
		}

		timestamp := time.Now().UnixMilli()
		nonce := uuid.NewString()
		signature := auth.Sign(secretHash, http.MethodPost, path, timestamp, nonce, body)

		req, err := http.NewRequest(http.MethodPost, *server+path, bytes.NewReader(body))
		if err != nil {
			log.Fatal(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("x-timestamp", fmt.Sprintf("%d", timestamp))
		req.Header.Set("x-nonce", nonce)
		req.Header.Set("x-signature", signature)

		resp, err := client.Do(req)
		if err != nil {
			log.Fatal(err)
		}
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		log.Printf("upload %d/%d -> %d %s", i+1, *count, resp.StatusCode, bytes.TrimSpace(respBody))
	}
}

func login(client *http.Client, server, device, secret string) (string, error) {
	body, err := json.Marshal(map[string]string{"deviceId": device, "secret": secret})
	if err != nil {
		return "", err
	}

	resp, err := client.Post(server+"/api/v1/auth/device-login", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, raw)
	}

	var result struct {
		Token          string `json:"token"`
		ExpiresIn      int    `json:"expiresIn"`
		AutoRegistered bool   `json:"autoRegistered"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if result.AutoRegistered {
		log.Printf("device auto-registered")
	}
	return result.Token, nil
}

func samplePayload(kind models.Kind) map[string]interface{} {
	collectedAt := time.Now().UTC().Format(time.RFC3339)

	switch kind {
	case models.KindHeartbeat:
		return map[string]interface{}{
			"battery":     rand.Intn(101),
			"collectedAt": collectedAt,
		}
	case models.KindLocation:
		return map[string]interface{}{
			"lat":         55.75 + rand.Float64()*0.02,
			"lon":         37.61 + rand.Float64()*0.02,
			"accuracy":    5 + rand.Float64()*20,
			"collectedAt": collectedAt,
		}
	default:
		return map[string]interface{}{
			"type":        "ping",
			"collectedAt": collectedAt,
		}
	}
}

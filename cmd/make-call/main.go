// make-call places a test call through the running API.
//
//	go run ./cmd/make-call +14155551234
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/dialworks/leadagent/pkg/utils"
)

func main() {
	baseURL := "http://localhost:8080"
	if url := os.Getenv("API_URL"); url != "" {
		baseURL = url
	}

	if len(os.Args) < 2 {
		log.Fatal("usage: make-call <phone>")
	}
	phone := utils.CanonicalPhone(os.Args[1])
	if phone == "" {
		log.Fatalf("%q is not a valid 10 or 11-digit US number", os.Args[1])
	}

	fmt.Printf("Placing call to %s via %s\n", phone, baseURL)

	body, err := json.Marshal(map[string]string{"phone": phone})
	if err != nil {
		log.Fatalf("Failed to marshal request: %v", err)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Post(baseURL+"/api/calls", "application/json", bytes.NewBuffer(body))
	if err != nil {
		log.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	fmt.Printf("Status: %s\n", resp.Status)
	fmt.Printf("Response: %s\n", string(respBody))

	if resp.StatusCode != http.StatusCreated {
		os.Exit(1)
	}
}

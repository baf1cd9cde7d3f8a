package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/mitchellwinn/pioneer-online-sub002/internal/handlers"
	"github.com/mitchellwinn/pioneer-online-sub002/internal/session"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

func testConnection(client *http.Client, baseURL string) bool {
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()
	return resp.StatusCode == http.StatusOK
}

func listDocuments(client *http.Client, baseURL, language string) (*handlers.DocumentInventory, error) {
	url := baseURL + "/v1/documents"
	if language != "" {
		url += "?language=" + language
	}
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp.StatusCode, body, "failed to list documents")
	}

	var inventory handlers.DocumentInventory
	if err := json.Unmarshal(body, &inventory); err != nil {
		return nil, fmt.Errorf("failed to parse document inventory: %w", err)
	}
	return &inventory, nil
}

func startConversation(client *http.Client, baseURL string, req handlers.StartConversationRequest) (*session.View, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := client.Post(
		baseURL+"/v1/conversations",
		"application/json",
		bytes.NewBuffer(jsonData),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusCreated {
		return nil, apiError(resp.StatusCode, body, "failed to start conversation")
	}

	var view session.View
	if err := json.Unmarshal(body, &view); err != nil {
		return nil, fmt.Errorf("failed to parse session view: %w", err)
	}
	return &view, nil
}

func getSession(client *http.Client, baseURL string, id uuid.UUID) (*session.View, error) {
	resp, err := client.Get(fmt.Sprintf("%s/v1/conversations/%s", baseURL, id))
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp.StatusCode, body, "failed to read session")
	}

	var view session.View
	if err := json.Unmarshal(body, &view); err != nil {
		return nil, fmt.Errorf("failed to parse session view: %w", err)
	}
	return &view, nil
}

// sendSignal posts one of the session's signal actions (advance, choose,
// fastforward) and returns the post-signal view.
func sendSignal(client *http.Client, baseURL string, id uuid.UUID, action string, payload any) (*session.View, error) {
	var reqBody io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	resp, err := client.Post(
		fmt.Sprintf("%s/v1/conversations/%s/%s", baseURL, id, action),
		"application/json",
		reqBody,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp.StatusCode, body, "signal "+action+" failed")
	}

	var view session.View
	if err := json.Unmarshal(body, &view); err != nil {
		return nil, fmt.Errorf("failed to parse session view: %w", err)
	}
	return &view, nil
}

func stopSession(client *http.Client, baseURL string, id uuid.UUID) error {
	req, err := http.NewRequest(http.MethodDelete,
		fmt.Sprintf("%s/v1/conversations/%s", baseURL, id), nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	if resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return apiError(resp.StatusCode, body, "failed to stop session")
	}
	return nil
}

func apiError(status int, body []byte, context string) error {
	var errorResp ErrorResponse
	if err := json.Unmarshal(body, &errorResp); err != nil || errorResp.Error == "" {
		return fmt.Errorf("API returned status %d: %s", status, string(body))
	}
	return fmt.Errorf("%s: %s", context, errorResp.Error)
}

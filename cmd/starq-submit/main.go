// Copyright 2025 James Ross
// starq-submit reads JSONL payloads from a file or stdin and submits them
// to a queue in batches.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

type jobEnvelope struct {
	Payload map[string]interface{} `json:"payload"`
}

type batchEnvelope struct {
	Jobs []jobEnvelope `json:"jobs"`
}

func main() {
	var queue, apiKey, baseURL string
	var batchSize int

	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.StringVar(&queue, "queue", "", "Queue name (required)")
	fs.StringVar(&apiKey, "api-key", "", "API key (required unless auth is disabled)")
	fs.StringVar(&baseURL, "url", "http://localhost:8080", "API base URL")
	fs.IntVar(&batchSize, "batch-size", 100, "Jobs per request")
	fs.Parse(os.Args[1:])

	if queue == "" {
		fmt.Fprintln(os.Stderr, "error: -queue is required")
		os.Exit(2)
	}

	args := fs.Args()
	var in io.Reader = os.Stdin
	if len(args) > 0 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}

	payloads, err := readPayloads(in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if len(payloads) == 0 {
		fmt.Fprintln(os.Stderr, "no jobs to submit")
		return
	}

	endpoint := fmt.Sprintf("%s/api/v1/queues/%s/jobs", strings.TrimRight(baseURL, "/"), queue)
	total := 0
	for start := 0; start < len(payloads); start += batchSize {
		end := start + batchSize
		if end > len(payloads) {
			end = len(payloads)
		}
		batch := payloads[start:end]

		envelope := batchEnvelope{Jobs: make([]jobEnvelope, len(batch))}
		for i, p := range batch {
			envelope.Jobs[i] = jobEnvelope{Payload: p}
		}
		body, err := json.Marshal(envelope)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}

		submitted, err := postBatch(endpoint, apiKey, body)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		total += submitted
		fmt.Printf("  submitted %d/%d\n", total, len(payloads))
	}

	fmt.Printf("Done — %d jobs submitted to %q\n", total, queue)
}

func readPayloads(r io.Reader) ([]map[string]interface{}, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var payloads []map[string]interface{}
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var payload map[string]interface{}
		if err := json.Unmarshal([]byte(line), &payload); err != nil {
			return nil, fmt.Errorf("bad JSON on line %d: %w", lineNo, err)
		}
		payloads = append(payloads, payload)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return payloads, nil
}

func postBatch(endpoint, apiKey string, body []byte) (int, error) {
	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%d %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Submitted int `json:"submitted"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return 0, err
	}
	return result.Submitted, nil
}

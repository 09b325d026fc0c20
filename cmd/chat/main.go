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
	"time"
)

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type session struct {
	server    string
	provider  string
	stream    bool
	context   bool
	history   []message
	client    *http.Client
	streaming *http.Client
}

func main() {
	server := flag.String("server", "http://localhost:8000", "ModelHub server URL")
	preferred := flag.String("provider", "", "Preferred provider ID (empty = auto-route)")
	stream := flag.Bool("stream", false, "Stream answers as they are generated")
	flag.Parse()

	s := &session{
		server:    strings.TrimRight(*server, "/"),
		provider:  *preferred,
		stream:    *stream,
		client:    &http.Client{Timeout: 130 * time.Second},
		streaming: &http.Client{},
	}

	fmt.Println("ModelHub CLI Chat")
	fmt.Printf("Server: %s\n", s.server)
	fmt.Println("Type 'exit' or 'quit' to leave.")
	fmt.Println("Commands: /providers, /use <id|auto>, /route <text>, /stream, /context, /add <text>, /reset")
	fmt.Println("---")

	s.fetchProviders()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("Bye!")
			return
		}
		if strings.HasPrefix(input, "/") {
			s.command(input)
			continue
		}
		s.send(input)
	}
}

func (s *session) command(input string) {
	cmd, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/providers":
		s.fetchProviders()
	case "/use":
		if arg == "" || arg == "auto" {
			s.provider = ""
			fmt.Println("Auto-routing enabled.")
			return
		}
		s.provider = arg
		fmt.Printf("Preferring %s when available.\n", arg)
	case "/route":
		s.route(arg)
	case "/stream":
		s.stream = !s.stream
		fmt.Printf("Streaming: %v\n", s.stream)
	case "/context":
		s.context = !s.context
		fmt.Printf("Knowledge-base context: %v\n", s.context)
	case "/add":
		s.addDocument(arg)
	case "/reset":
		s.history = nil
		fmt.Println("Conversation cleared.")
	default:
		printError("Unknown command %s", cmd)
	}
}

func (s *session) fetchProviders() {
	resp, err := s.client.Get(s.server + "/api/providers")
	if err != nil {
		printError("Failed to fetch providers: %v", err)
		return
	}
	defer resp.Body.Close()

	var providers []struct {
		ID        string   `json:"id"`
		Name      string   `json:"name"`
		Available bool     `json:"available"`
		Models    []string `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&providers); err != nil {
		printError("Failed to parse providers: %v", err)
		return
	}
	fmt.Println("Providers:")
	for _, p := range providers {
		icon := "\033[31m✗\033[0m"
		if p.Available {
			icon = "\033[32m✓\033[0m"
		}
		fmt.Printf("  %s %-12s %s (%d models)\n", icon, p.ID, p.Name, len(p.Models))
	}
}

func (s *session) route(text string) {
	var out struct {
		Provider    string `json:"provider"`
		Model       string `json:"model"`
		Explanation string `json:"routing_explanation"`
	}
	if err := s.postJSON("/api/route", map[string]string{"message": text, "preferred_provider": s.provider}, &out); err != nil {
		printError("%v", err)
		return
	}
	fmt.Printf("%s / %s\n%s\n", out.Provider, out.Model, out.Explanation)
}

func (s *session) addDocument(text string) {
	var out struct {
		ChunksAdded int `json:"chunks_added"`
	}
	if err := s.postJSON("/api/rag/add", map[string]interface{}{
		"content":  text,
		"metadata": map[string]string{"source": "cli", "type": "text"},
	}, &out); err != nil {
		printError("%v", err)
		return
	}
	fmt.Printf("Added %d chunk(s).\n", out.ChunksAdded)
}

func (s *session) request(content string) map[string]interface{} {
	return map[string]interface{}{
		"message":              content,
		"conversation_history": s.history,
		"preferred_provider":   s.provider,
		"use_context":          s.context,
	}
}

func (s *session) send(content string) {
	var answer string
	var err error
	if s.stream {
		answer, err = s.sendStream(content)
	} else {
		answer, err = s.sendChat(content)
	}
	if err != nil {
		printError("%v", err)
		return
	}
	s.history = append(s.history,
		message{Role: "user", Content: content},
		message{Role: "assistant", Content: answer})
}

func (s *session) sendChat(content string) (string, error) {
	var out struct {
		Response string `json:"response"`
		Provider string `json:"provider"`
		Model    string `json:"model"`
		Category string `json:"category"`
	}
	if err := s.postJSON("/api/chat", s.request(content), &out); err != nil {
		return "", err
	}
	fmt.Printf("\033[36m[%s/%s · %s]\033[0m %s\n", out.Provider, out.Model, out.Category, out.Response)
	return out.Response, nil
}

func (s *session) sendStream(content string) (string, error) {
	body, _ := json.Marshal(s.request(content))
	resp, err := s.streaming.Post(s.server+"/api/chat/stream", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("server error (%d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var answer strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			continue
		}
		switch ev.Type {
		case "metadata":
			var meta struct {
				Provider string `json:"provider"`
				Model    string `json:"model"`
				Category string `json:"category"`
			}
			json.Unmarshal(ev.Data, &meta)
			fmt.Printf("\033[36m[%s/%s · %s]\033[0m ", meta.Provider, meta.Model, meta.Category)
		case "content":
			var text string
			json.Unmarshal(ev.Data, &text)
			answer.WriteString(text)
			fmt.Print(text)
		case "error":
			var msg string
			json.Unmarshal(ev.Data, &msg)
			fmt.Println()
			return "", fmt.Errorf("stream failed: %s", msg)
		case "done":
			fmt.Println()
			return answer.String(), nil
		}
	}
	fmt.Println()
	return answer.String(), scanner.Err()
}

func (s *session) postJSON(path string, in, out interface{}) error {
	body, _ := json.Marshal(in)
	resp, err := s.client.Post(s.server+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error (%d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "\033[31m"+format+"\033[0m\n", args...)
}

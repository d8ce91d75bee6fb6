package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// runInteractiveCLI starts an interactive command-line interface for
// exercising the engine without an MCP client.
func (a *App) runInteractiveCLI(ctx context.Context) {
	fmt.Println(WelcomeMsg)
	fmt.Println(HelpMsg)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n" + PromptStr)
		if !scanner.Scan() {
			break
		}

		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		cmd := strings.ToLower(parts[0])
		switch cmd {
		case "exit":
			return

		case "search":
			if len(parts) < 2 {
				fmt.Println("Usage: search <terms>")
				continue
			}
			a.cliCall(ctx, a.searchHandler, map[string]any{"query": strings.Join(parts[1:], " ")})

		case "recent":
			a.cliCall(ctx, a.recentHandler, map[string]any{})

		case "show":
			if len(parts) < 2 {
				fmt.Println("Usage: show <id>")
				continue
			}
			a.cliCall(ctx, a.overviewHandler, map[string]any{"session": parts[1]})

		case "read":
			if len(parts) < 2 {
				fmt.Println("Usage: read <id[:c|@t|.m]> [full]")
				continue
			}
			full := len(parts) > 2 && parts[2] == "full"
			a.cliCall(ctx, a.readHandler, map[string]any{"session": parts[1], "full": full})

		case "note":
			if len(parts) < 3 {
				fmt.Println("Usage: note <id> <text>")
				continue
			}
			a.cliCall(ctx, a.noteHandler, map[string]any{"session": parts[1], "text": strings.Join(parts[2:], " ")})

		case "projects":
			a.cliCall(ctx, a.projectsHandler, map[string]any{})

		default:
			fmt.Println(UnknownCmdMsg)
		}
	}
}

// cliCall invokes a tool handler and prints the result.
func (a *App) cliCall(ctx context.Context, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args

	res, err := handler(ctx, req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	text := res.Content[0].(mcp.TextContent).Text
	if res.IsError {
		fmt.Printf("Error: %s\n", text)
		return
	}
	fmt.Println(text)
}

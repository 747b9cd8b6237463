package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dvanderweele/vzfs/internal/operator"
)

// registerTools binds the five MCP tools a host process drives VZFS
// through to the given actor, each tool call translating directly
// into a single operator.Command/Reply round trip.
func registerTools(s *server.MCPServer, actor *operator.Actor, ctx context.Context) {
	s.AddTool(mcp.NewTool("read_file",
		mcp.WithDescription("Read a leaf's content by absolute path."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute path of the file to read.")),
	), func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := req.RequireString("path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		reply := actor.Send(ctx, operator.Command{Kind: operator.ReadFile, ReadFile: operator.PathPayload{Path: path}})
		if reply.Err != nil {
			return mcp.NewToolResultError(reply.Err.Error()), nil
		}
		record, _ := reply.Data.(operator.FileRecord)
		return mcp.NewToolResultText(toolResult(record.Content)), nil
	})

	s.AddTool(mcp.NewTool("write_file",
		mcp.WithDescription("Create a leaf with content, or overwrite an existing leaf's content."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute path of the file.")),
		mcp.WithString("content", mcp.Description("New content. Empty string creates an empty file.")),
	), func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := req.RequireString("path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		content := req.GetString("content", "")

		parentPath, name := splitPath(path)
		getReply := actor.Send(ctx, operator.Command{Kind: operator.ReadFile, ReadFile: operator.PathPayload{Path: path}})
		if getReply.Err == nil {
			reply := actor.Send(ctx, operator.Command{Kind: operator.UpdateFileContent, UpdateFileContent: operator.UpdateFileContentPayload{Path: path, Content: []byte(content)}})
			if reply.Err != nil {
				return mcp.NewToolResultError(reply.Err.Error()), nil
			}
			return mcp.NewToolResultText(toolResult(nil)), nil
		}

		reply := actor.Send(ctx, operator.Command{Kind: operator.CreateFile, CreateFile: operator.CreateFilePayload{Name: name, ParentPath: parentPath, Content: []byte(content)}})
		if reply.Err != nil {
			return mcp.NewToolResultError(reply.Err.Error()), nil
		}
		return mcp.NewToolResultText(toolResult(nil)), nil
	})

	s.AddTool(mcp.NewTool("list_directory",
		mcp.WithDescription("List the immediate children of a directory."),
		mcp.WithString("path", mcp.Description("Absolute path of the directory. Omit to list the current directory.")),
	), func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path := req.GetString("path", "")
		cmd := operator.Command{Kind: operator.GetDirectoryRecord}
		if path != "" {
			cmd.GetDirectoryRecord = operator.OptionalPathPayload{Path: path, Present: true}
		}
		reply := actor.Send(ctx, cmd)
		if reply.Err != nil {
			return mcp.NewToolResultError(reply.Err.Error()), nil
		}
		record, _ := reply.Data.(operator.DirectoryRecord)
		return mcp.NewToolResultText(toolResult(record.ChildKeys)), nil
	})

	s.AddTool(mcp.NewTool("make_directory",
		mcp.WithDescription("Create a directory entity."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute path of the new directory.")),
	), func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := req.RequireString("path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		parentPath, name := splitPath(path)
		reply := actor.Send(ctx, operator.Command{Kind: operator.CreateDirectory, CreateDirectory: operator.CreateDirectoryPayload{Name: name, ParentPath: parentPath}})
		if reply.Err != nil {
			return mcp.NewToolResultError(reply.Err.Error()), nil
		}
		return mcp.NewToolResultText(toolResult(nil)), nil
	})

	s.AddTool(mcp.NewTool("remove",
		mcp.WithDescription("Delete a leaf, or an empty directory."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute path to delete.")),
	), func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := req.RequireString("path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		reply := actor.Send(ctx, operator.Command{Kind: operator.DeleteFile, DeleteFile: operator.PathPayload{Path: path}})
		if reply.Err == nil {
			return mcp.NewToolResultText(toolResult(nil)), nil
		}
		reply = actor.Send(ctx, operator.Command{Kind: operator.DeleteDirectoryIfEmpty, DeleteDirectoryIfEmpty: operator.PathPayload{Path: path}})
		if reply.Err != nil {
			return mcp.NewToolResultError(reply.Err.Error()), nil
		}
		return mcp.NewToolResultText(toolResult(nil)), nil
	})
}

// toolResult mints a call id so a host process can correlate a tool
// result against its own log even though MCP's text content carries
// no structured envelope of its own.
func toolResult(payload interface{}) string {
	return fmt.Sprintf("id=%s %v", uuid.NewString(), payload)
}

func splitPath(p string) (parentPath, name string) {
	if p == "/" {
		return "", ""
	}
	i := len(p) - 1
	for i > 0 && p[i] == '/' {
		i--
	}
	trimmed := p[:i+1]
	slash := -1
	for j := len(trimmed) - 1; j >= 0; j-- {
		if trimmed[j] == '/' {
			slash = j
			break
		}
	}
	if slash < 0 {
		return "/", trimmed
	}
	if slash == 0 {
		return "/", trimmed[1:]
	}
	return trimmed[:slash], trimmed[slash+1:]
}

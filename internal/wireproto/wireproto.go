// Package wireproto turns the actor protocol's command/reply shapes
// into the plain map[string]interface{} values a JSON-lines codec
// reads and writes, so every stdio front-end (cmd/vzfsd, cmd/vzfs
// serve) shares one decoder instead of each growing its own copy.
package wireproto

import (
	"fmt"

	"github.com/dvanderweele/vzfs/internal/operator"
)

// DecodeCommand turns one decoded JSON-lines request object into an
// operator.Command. The wire shape mirrors the actor protocol table:
// {"kind": "...", "durationMs": 0, ...payload fields inlined...}.
func DecodeCommand(req map[string]interface{}) (operator.Command, error) {
	kindStr, _ := req["kind"].(string)
	kind, ok := kindFromString(kindStr)
	if !ok {
		return operator.Command{}, fmt.Errorf("unknown command kind %q", kindStr)
	}
	cmd := operator.Command{Kind: kind}
	if d, ok := req["durationMs"].(float64); ok {
		cmd.DurationMS = int(d)
	}

	str := func(key string) string {
		s, _ := req[key].(string)
		return s
	}
	bytesOf := func(key string) []byte {
		return []byte(str(key))
	}

	switch kind {
	case operator.Init:
		version := 1
		if v, ok := req["version"].(float64); ok {
			version = int(v)
		}
		cmd.Init = operator.InitPayload{FilesystemName: str("filesystemName"), Version: version}
	case operator.DropFilesystem:
		cmd.DropFilesystem = operator.DropFilesystemPayload{FSName: str("fsName")}
	case operator.RestoreFilesystemFromJSON:
		version := 1
		if v, ok := req["version"].(float64); ok {
			version = int(v)
		}
		cmd.RestoreFilesystemFromJSON = operator.RestoreFilesystemFromJSONPayload{
			FSName: str("fsName"), Version: version, Backup: str("backup"),
		}
	case operator.ChangeDirectory:
		cmd.ChangeDirectory = operator.ChangeDirectoryPayload{NewDirectoryPath: str("newDirectoryPath")}
	case operator.CreateFile:
		cmd.CreateFile = operator.CreateFilePayload{Name: str("name"), ParentPath: str("parentPath"), Content: bytesOf("content")}
	case operator.ReadFile:
		cmd.ReadFile = operator.PathPayload{Path: str("path")}
	case operator.UpdateFileTimestamp:
		cmd.UpdateFileTimestamp = operator.PathPayload{Path: str("path")}
	case operator.UpdateFileContent:
		cmd.UpdateFileContent = operator.UpdateFileContentPayload{Path: str("path"), Content: bytesOf("content")}
	case operator.DeleteFile:
		cmd.DeleteFile = operator.PathPayload{Path: str("path")}
	case operator.CreateDirectory:
		cmd.CreateDirectory = operator.CreateDirectoryPayload{Name: str("name"), ParentPath: str("parentPath")}
	case operator.GetDirectoryRecord:
		path, present := req["path"]
		cmd.GetDirectoryRecord = operator.OptionalPathPayload{Present: present}
		if present {
			cmd.GetDirectoryRecord.Path, _ = path.(string)
		}
	case operator.EmptyDirectory:
		cmd.EmptyDirectory = operator.PathPayload{Path: str("path")}
	case operator.DeleteDirectoryIfEmpty:
		cmd.DeleteDirectoryIfEmpty = operator.PathPayload{Path: str("path")}
	case operator.ListFilesystems, operator.RipFilesystemToJSON, operator.Close:
		// no payload fields.
	}
	return cmd, nil
}

func kindFromString(s string) (operator.Kind, bool) {
	switch s {
	case "init":
		return operator.Init, true
	case "listFilesystems":
		return operator.ListFilesystems, true
	case "dropFilesystem":
		return operator.DropFilesystem, true
	case "restoreFilesystemFromJSON":
		return operator.RestoreFilesystemFromJSON, true
	case "changeDirectory":
		return operator.ChangeDirectory, true
	case "createFile":
		return operator.CreateFile, true
	case "readFile":
		return operator.ReadFile, true
	case "updateFileTimestamp":
		return operator.UpdateFileTimestamp, true
	case "updateFileContent":
		return operator.UpdateFileContent, true
	case "deleteFile":
		return operator.DeleteFile, true
	case "createDirectory":
		return operator.CreateDirectory, true
	case "getDirectoryRecord":
		return operator.GetDirectoryRecord, true
	case "emptyDirectory":
		return operator.EmptyDirectory, true
	case "deleteDirectoryIfEmpty":
		return operator.DeleteDirectoryIfEmpty, true
	case "ripFilesystemToJSON":
		return operator.RipFilesystemToJSON, true
	case "close":
		return operator.Close, true
	default:
		return 0, false
	}
}

// ReplyToWire turns a Reply into the JSON-lines response object:
// either {"kind": ..., "ok": true, "data": ...} or
// {"kind": ..., "ok": false, "error": "..."}.
func ReplyToWire(r operator.Reply) map[string]interface{} {
	out := map[string]interface{}{"kind": r.Kind.String()}
	if r.Err != nil {
		out["ok"] = false
		out["error"] = r.Err.Error()
		return out
	}
	out["ok"] = true
	if r.Data != nil {
		out["data"] = r.Data
	}
	return out
}

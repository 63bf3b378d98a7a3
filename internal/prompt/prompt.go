// Package prompt assembles the system prompt and the user message for
// one job from the folder instructions and the provided file content.
package prompt

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/smartfolderhq/smartfolder/internal/content"
	"github.com/smartfolderhq/smartfolder/internal/llm"
)

// systemInstructions are appended verbatim after the folder prompt.
// They pin down the three behaviors that matter most across models:
// no guessing, write_file is for new artifacts only, and chained tool
// calls must track renames.
const systemInstructions = `Rules:
- Never guess missing information. If you are unsure what a file is or what name it deserves, do not rename it.
- write_file is only for creating brand-new files the instructions explicitly ask for. Renaming an existing file always uses rename_file, never write_file.
- After any successful tool call, later tool calls must refer to the file by the new name that tool reported, not the original name.`

// System wraps the folder prompt with the fixed system instructions.
func System(folderPrompt string) string {
	var sb strings.Builder
	sb.WriteString("You are an automated folder assistant. A new file has arrived in a watched folder. Follow the folder instructions below using only the provided tools.\n\n")
	sb.WriteString("Folder instructions:\n")
	sb.WriteString(strings.TrimSpace(folderPrompt))
	sb.WriteString("\n\n")
	sb.WriteString(systemInstructions)
	return sb.String()
}

// User assembles the user message. Text-only content yields a single
// text part; binary bodies append an image or file part after the
// text, so the transport can encode the bytes for the model.
func User(file *content.File) llm.Message {
	var sb strings.Builder

	core := file.Core
	sb.WriteString("## File\n\n")
	fmt.Fprintf(&sb, "- Name: %s\n", core.Name)
	fmt.Fprintf(&sb, "- Relative path: %s\n", core.RelativePath)
	fmt.Fprintf(&sb, "- Category: %s\n", core.Category)
	fmt.Fprintf(&sb, "- Size: %s (%d bytes)\n", humanize.Bytes(uint64(core.Size)), core.Size)
	fmt.Fprintf(&sb, "- Modified: %s\n", core.Modified.Format("2006-01-02 15:04:05 MST"))
	if core.SHA256 != "" {
		fmt.Fprintf(&sb, "- SHA-256: %s\n", core.SHA256)
	}

	for _, typed := range file.Typed {
		fmt.Fprintf(&sb, "\n## %s metadata\n\n", strings.ToUpper(typed.Kind[:1])+typed.Kind[1:])
		for _, f := range typed.Fields {
			fmt.Fprintf(&sb, "- %s: %s\n", f.Key, f.Value)
		}
	}

	writeBodySection(&sb, file)

	sb.WriteString("\n## Available tools\n\n")
	for _, id := range file.AvailableTools {
		fmt.Fprintf(&sb, "- %s\n", id)
	}

	sb.WriteString("\n## Instructions\n\n")
	fmt.Fprintf(&sb, "The exact original filename is %q. ", core.Name)
	sb.WriteString("Any rename must preserve the original file extension exactly. Decide what to do per the folder instructions, then act using the tools.")

	msg := llm.Message{Role: "user"}
	body := file.Body
	if body.Kind != content.BodyFullBinary {
		msg.Content = sb.String()
		return msg
	}

	textPart := llm.Part{Kind: llm.PartText, Text: sb.String()}
	if strings.HasPrefix(body.MediaType, "image/") {
		msg.Parts = []llm.Part{textPart, {
			Kind:      llm.PartImage,
			Data:      body.Data,
			MediaType: body.MediaType,
		}}
	} else {
		msg.Parts = []llm.Part{textPart, {
			Kind:      llm.PartFile,
			Data:      body.Data,
			MediaType: body.MediaType,
			FileName:  core.Name,
		}}
	}
	return msg
}

func writeBodySection(sb *strings.Builder, file *content.File) {
	body := file.Body
	switch body.Kind {
	case content.BodyFullText:
		sb.WriteString("\n## Content\n\n```\n")
		sb.WriteString(body.Text)
		sb.WriteString("\n```\n")

	case content.BodyPartialText:
		if body.CSVHeader != "" {
			sb.WriteString("\n## CSV Header\n\n```\n")
			sb.WriteString(body.CSVHeader)
			sb.WriteString("\n```\n")
		}
		sb.WriteString("\n## Content (excerpt)\n\n```\n")
		sb.WriteString(body.Text)
		sb.WriteString("\n```\n")

	case content.BodyFullBinary:
		sb.WriteString("\n## Content\n\nThe file bytes are attached to this message.\n")

	default:
		sb.WriteString("\n## Content\n\nFile content omitted (too large or not natively supported by the selected model); use the metadata above.\n")
	}
}

// Package classify maps a file name and optional MIME type to one of
// the ten content categories the pipeline routes on.
package classify

import (
	"path/filepath"
	"strings"
)

// Category is a broad content class used for routing.
type Category string

const (
	TextDocument Category = "text_document"
	Code         Category = "code"
	Data         Category = "data"
	Image        Category = "image"
	PDF          Category = "pdf"
	Audio        Category = "audio"
	Video        Category = "video"
	Office       Category = "office"
	Archive      Category = "archive"
	Folder       Category = "folder"
)

var extCategories = map[string]Category{
	// text
	".txt": TextDocument, ".md": TextDocument, ".markdown": TextDocument,
	".rst": TextDocument, ".log": TextDocument, ".tex": TextDocument,
	".rtf": TextDocument,

	// code
	".go": Code, ".py": Code, ".js": Code, ".ts": Code, ".jsx": Code,
	".tsx": Code, ".c": Code, ".h": Code, ".cpp": Code, ".hpp": Code,
	".cc": Code, ".java": Code, ".rb": Code, ".rs": Code, ".php": Code,
	".swift": Code, ".kt": Code, ".sh": Code, ".bash": Code, ".zsh": Code,
	".pl": Code, ".lua": Code, ".sql": Code, ".html": Code, ".htm": Code,
	".css": Code, ".scss": Code, ".vue": Code, ".dart": Code,

	// structured data
	".csv": Data, ".tsv": Data, ".json": Data, ".jsonl": Data,
	".ndjson": Data, ".yaml": Data, ".yml": Data, ".toml": Data,
	".xml": Data, ".ini": Data, ".parquet": Data,

	// images
	".jpg": Image, ".jpeg": Image, ".png": Image, ".gif": Image,
	".bmp": Image, ".webp": Image, ".svg": Image, ".heic": Image,
	".heif": Image, ".tif": Image, ".tiff": Image, ".ico": Image,

	".pdf": PDF,

	// audio
	".mp3": Audio, ".wav": Audio, ".flac": Audio, ".m4a": Audio,
	".aac": Audio, ".ogg": Audio, ".opus": Audio, ".wma": Audio,

	// video
	".mp4": Video, ".mov": Video, ".avi": Video, ".mkv": Video,
	".webm": Video, ".wmv": Video, ".m4v": Video, ".mpg": Video,
	".mpeg": Video,

	// office documents
	".doc": Office, ".docx": Office, ".xls": Office, ".xlsx": Office,
	".ppt": Office, ".pptx": Office, ".odt": Office, ".ods": Office,
	".odp": Office, ".key": Office, ".pages": Office, ".numbers": Office,

	// archives
	".zip": Archive, ".tar": Archive, ".gz": Archive, ".tgz": Archive,
	".bz2": Archive, ".xz": Archive, ".7z": Archive, ".rar": Archive,
}

// Classify maps a base name and optional MIME type to a category.
// MIME prefixes image/, video/, audio/ and text/ short-circuit the
// extension table. Multi-dot names use the final extension, so
// report.tar.gz lands on Archive. Unknown inputs default to
// TextDocument.
func Classify(name, mimeType string) Category {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return Image
	case strings.HasPrefix(mimeType, "video/"):
		return Video
	case strings.HasPrefix(mimeType, "audio/"):
		return Audio
	case strings.HasPrefix(mimeType, "text/"):
		return TextDocument
	}

	ext := strings.ToLower(filepath.Ext(name))
	if cat, ok := extCategories[ext]; ok {
		return cat
	}
	return TextDocument
}

// IsTextual reports whether a category carries UTF-8 content the text
// tools (read_file, grep, sed, head, tail) may operate on.
func IsTextual(cat Category) bool {
	switch cat {
	case TextDocument, Code, Data:
		return true
	}
	return false
}

package recognition

import "strings"

// Rect is an axis-aligned bounding box in source-image pixel space.
type Rect struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// ZeroRect is the explicit degenerate box used when the vendor result
// carries no bounding box.
var ZeroRect = Rect{}

func (r Rect) IsZero() bool {
	return r == ZeroRect
}

func (r Rect) Width() int {
	return r.Right - r.Left
}

func (r Rect) Height() int {
	return r.Bottom - r.Top
}

// Union returns the smallest rect covering both r and other.
func (r Rect) Union(other Rect) Rect {
	if r.IsZero() {
		return other
	}
	if other.IsZero() {
		return r
	}
	return Rect{
		Left:   min(r.Left, other.Left),
		Top:    min(r.Top, other.Top),
		Right:  max(r.Right, other.Right),
		Bottom: max(r.Bottom, other.Bottom),
	}
}

// TextLine is a single recognized line within a block.
type TextLine struct {
	Text        string `json:"text"`
	BoundingBox Rect   `json:"boundingBox"`
}

// TextBlock is a recognized block of text with its lines.
type TextBlock struct {
	Text        string     `json:"text"`
	BoundingBox Rect       `json:"boundingBox"`
	Lines       []TextLine `json:"lines"`
}

// DetectedText is the structured result of one recognition pass.
type DetectedText struct {
	FullText string      `json:"fullText"`
	Blocks   []TextBlock `json:"blocks"`
}

// Image is the opaque input handle passed to the OCR backend. The core
// never decodes or transforms pixel data itself.
type Image struct {
	Data   []byte
	Format string
	Width  int
	Height int
}

// Script selects the recognizer variant for a writing system.
type Script string

const (
	ScriptLatin      Script = "latin"
	ScriptChinese    Script = "chinese"
	ScriptJapanese   Script = "japanese"
	ScriptKorean     Script = "korean"
	ScriptDevanagari Script = "devanagari"
)

var scriptByLanguage = map[string]Script{
	"zh": ScriptChinese,
	"ja": ScriptJapanese,
	"ko": ScriptKorean,
	"hi": ScriptDevanagari,
	"mr": ScriptDevanagari,
	"ne": ScriptDevanagari,
	"sa": ScriptDevanagari,
}

// ScriptForLanguage maps a language code to its recognizer script
// family, defaulting to Latin. Region subtags are ignored ("zh-TW"
// selects the Chinese recognizer).
func ScriptForLanguage(code string) Script {
	base := strings.ToLower(code)
	if i := strings.IndexAny(base, "-_"); i > 0 {
		base = base[:i]
	}
	if script, ok := scriptByLanguage[base]; ok {
		return script
	}
	return ScriptLatin
}

// RawLine and RawBlock form the vendor result tree. Bounding boxes are
// optional at this layer; conversion defaults absent boxes to ZeroRect.
type RawLine struct {
	Text string
	Box  *Rect
}

type RawBlock struct {
	Text  string
	Box   *Rect
	Lines []RawLine
}

type RawResult struct {
	Blocks []RawBlock
}

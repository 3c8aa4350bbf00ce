// Package types defines the data model shared across the Navigation Brain:
// node/path identity, the action vocabulary, and the persisted graph shape.
package types

import "time"

// NodeId is the identity of a screen state: a program label paired with a
// content hash of its visible UI. Same (ProgramName, StateHash) implies
// intended-equivalent screens.
type NodeId struct {
	ProgramName string `json:"programName"`
	StateHash   string `json:"stateHash"`
}

// PendingStateHash marks a freshly learned Path's destination before the
// Brain Controller re-identifies the screen it actually landed on. A Path
// carrying this hash must never be persisted (property P6).
const PendingStateHash = "pending"

// UnknownProgramName is the placeholder destination program of a path that
// has not yet been executed and re-identified.
const UnknownProgramName = "Unknown"

// SpotlightProgramName and SpotlightStateHash identify the bootstrap node
// that must exist immediately after Brain initialization (invariant I5).
const (
	SpotlightProgramName = "Spotlight"
	SpotlightStateHash   = "default"
)

// ElementKind enumerates the recognized UI element categories.
type ElementKind string

const (
	KindButton ElementKind = "button"
	KindInput  ElementKind = "input"
	KindText   ElementKind = "text"
	KindImage  ElementKind = "image"
	KindLink   ElementKind = "link"
	KindMenu   ElementKind = "menu"
	KindOther  ElementKind = "other"
)

// BBox is a pixel-space bounding box, or a normalized [0,1] box before
// Perception converts it (see statehash.ConvertBBox).
type BBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Normalized reports whether all four components lie in [0,1] — the
// detection rule spec.md §4.C1 uses to decide a bbox needs pixel conversion.
func (b BBox) Normalized() bool {
	in01 := func(v float64) bool { return v >= 0 && v <= 1 }
	return in01(b.X) && in01(b.Y) && in01(b.W) && in01(b.H)
}

// UIElement is one recognized piece of screen content, from OCR and/or VLM.
type UIElement struct {
	Kind       ElementKind `json:"kind"`
	Text       string      `json:"text,omitempty"`
	BBox       *BBox       `json:"bbox,omitempty"`
	Confidence *float64    `json:"confidence,omitempty"`
}

// Node is a persistent abstract place: a program plus a content-hash of its
// visible UI, created on first identification and updated on every
// re-identification thereafter. Never deleted by the Brain itself.
type Node struct {
	Id            NodeId      `json:"id"`
	Title         string      `json:"title,omitempty"`
	Screenshot    string      `json:"screenshot,omitempty"` // base64 PNG, optional archival
	UIElements    []UIElement `json:"uiElements"`
	Description   string      `json:"description,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
	LastVisitedAt time.Time   `json:"lastVisitedAt"`
	VisitCount    int         `json:"visitCount"`
	ChildrenIds   []NodeId    `json:"childrenIds,omitempty"` // data-only, see DESIGN.md open question (d)
}

// ClickButton enumerates the mouse buttons a Click action may specify.
type ClickButton string

const (
	ButtonLeft   ClickButton = "left"
	ButtonRight  ClickButton = "right"
	ButtonMiddle ClickButton = "middle"
)

// Modifier enumerates the keyboard modifiers a Hotkey action may hold down.
type Modifier string

const (
	ModCommand Modifier = "command"
	ModCtrl    Modifier = "ctrl"
	ModAlt     Modifier = "alt"
	ModShift   Modifier = "shift"
)

// ScrollDirection enumerates the directions a Scroll action may move.
type ScrollDirection string

const (
	ScrollUp   ScrollDirection = "up"
	ScrollDown ScrollDirection = "down"
)

// ActionKind tags which variant of ActionData is populated. Go has no sum
// type, so ActionData carries one populated pointer field per variant and
// Kind says which one.
type ActionKind string

const (
	ActionClick  ActionKind = "click"
	ActionType   ActionKind = "type"
	ActionHotkey ActionKind = "hotkey"
	ActionWait   ActionKind = "wait"
	ActionScroll ActionKind = "scroll"
)

// ClickData is coordinate-based when X and Y are both non-nil, text-based
// when Text is non-empty. Never both in the same invocation (spec.md §3).
type ClickData struct {
	X           *float64    `json:"x,omitempty"`
	Y           *float64    `json:"y,omitempty"`
	Text        string      `json:"text,omitempty"`
	Button      ClickButton `json:"button"`
	DoubleClick bool        `json:"doubleClick,omitempty"`
}

// IsCoordinateBased reports whether both X and Y are set.
func (c ClickData) IsCoordinateBased() bool { return c.X != nil && c.Y != nil }

// IsTextBased reports whether Text is set (and coordinates are not).
func (c ClickData) IsTextBased() bool { return c.Text != "" && !c.IsCoordinateBased() }

type TypeData struct {
	Text       string `json:"text"`
	PressEnter bool   `json:"pressEnter,omitempty"`
	DelayMs    int    `json:"delay_ms,omitempty"`
}

type HotkeyData struct {
	Key       string     `json:"key,omitempty"`
	Keys      []string   `json:"keys,omitempty"`
	Modifiers []Modifier `json:"modifiers,omitempty"`
}

// AllKeys returns Key folded into Keys (Key is a convenience singular form).
func (h HotkeyData) AllKeys() []string {
	if h.Key == "" {
		return h.Keys
	}
	return append([]string{h.Key}, h.Keys...)
}

type WaitData struct {
	Milliseconds int `json:"milliseconds"`
}

type ScrollData struct {
	Amount    int             `json:"amount"`
	Direction ScrollDirection `json:"direction"`
}

// ActionData is the tagged-variant payload of an Action. Exactly one of the
// *Data fields matching Kind is populated.
type ActionData struct {
	Kind   ActionKind  `json:"kind"`
	Click  *ClickData  `json:"click,omitempty"`
	Type   *TypeData   `json:"type,omitempty"`
	Hotkey *HotkeyData `json:"hotkey,omitempty"`
	Wait   *WaitData   `json:"wait,omitempty"`
	Scroll *ScrollData `json:"scroll,omitempty"`
}

// Action is one step of a Path.
type Action struct {
	Id             string     `json:"id"` // UUID
	Data           ActionData `json:"data"`
	Description    string     `json:"description,omitempty"`
	RetryOnFailure bool       `json:"retryOnFailure"`
}

// Validation holds the acceptance criteria a Path's execution must satisfy.
type Validation struct {
	ExpectedElements []UIElement `json:"expectedElements"`
	ExpectedText     []string    `json:"expectedText,omitempty"`
	TimeoutMs        int         `json:"timeout_ms"`
}

// DefaultTimeoutMs is the default Path.Validation.TimeoutMs (spec.md §5).
const DefaultTimeoutMs = 30_000

// LearnedBy enumerates how a Path came to exist.
type LearnedBy string

const (
	LearnedByVLM      LearnedBy = "vlm"
	LearnedByManual   LearnedBy = "manual"
	LearnedByRecorded LearnedBy = "recorded"
)

// PathMetadata is recomputed on every execution per invariant I3.
type PathMetadata struct {
	SuccessRate       float64   `json:"successRate"`
	LastUsed          time.Time `json:"lastUsed"`
	UsageCount        int       `json:"usageCount"`
	AverageDurationMs float64   `json:"averageDuration_ms"`
	LearnedBy         LearnedBy `json:"learnedBy"`
}

// OCREvidence is the OCR-derived portion of a PathVerification entry.
type OCREvidence struct {
	FullText      string `json:"fullText"`
	ElementsFound int    `json:"elementsFound"`
}

// VLMEvidence is the VLM-derived portion of a PathVerification entry.
type VLMEvidence struct {
	Match      bool    `json:"match"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// PathVerification is appended once per executed action.
type PathVerification struct {
	Timestamp     time.Time    `json:"timestamp"`
	Success       bool         `json:"success"`
	ActionIndex   int          `json:"actionIndex"`
	OCRResult     *OCREvidence `json:"ocrResult,omitempty"`
	VLMResult     *VLMEvidence `json:"vlmResult,omitempty"`
	FailureReason string       `json:"failureReason,omitempty"`
}

// Path is a persistent directed edge between two Nodes, carrying an action
// sequence and verification criteria.
type Path struct {
	Id         string `json:"id"` // UUID
	FromNodeId NodeId `json:"fromNodeId"`
	ToNodeId   NodeId `json:"toNodeId"`
	// TargetDescription is the natural-language target the Path was learned
	// for (e.g. "the Display pane of System Preferences"). Not named in
	// spec.md's Path fields; supplemented so the Brain Controller can match
	// an existing Path against a new navigateTo(target) call without a
	// vision-model round-trip (spec.md §1 scenario S3's "without any vision
	// model call" requirement has no other data to key off of).
	TargetDescription   string             `json:"targetDescription,omitempty"`
	Actions             []Action           `json:"actions"`
	Validation          Validation         `json:"validation"`
	VerificationHistory []PathVerification `json:"verificationHistory"`
	Metadata            PathMetadata       `json:"metadata"`
}

// ShadowDOM is a volatile snapshot of the current screen bound to a Node
// identity. Never persisted; at most one exists at a time inside the Brain.
type ShadowDOM struct {
	NodeId         NodeId      `json:"nodeId"`
	CapturedAt     time.Time   `json:"capturedAt"`
	Screenshot     string      `json:"screenshot"` // base64 PNG
	UIElements     []UIElement `json:"uiElements"`
	OCRFullText    string      `json:"ocrResult,omitempty"`
	VLMDescription string      `json:"vlmDescription,omitempty"`
	InstanceHash   string      `json:"instanceHash"`
}

// NavigationGraph is a map-keyed view of the directed multigraph of Nodes and
// Paths. It is not the on-disk shape: internal/graph writes nodes and edges
// as ordered list-of-pair encodings (graph.wireDoc), and internal/graph.Graph
// is the in-memory representation the Brain actually holds and mutates.
type NavigationGraph struct {
	Nodes         map[string]Node   `json:"nodes"` // key: "<program>::<hash>"
	Edges         map[string][]Path `json:"edges"` // key: source "<program>::<hash>"
	CurrentNodeId *NodeId           `json:"currentNodeId,omitempty"`
	Version       string            `json:"version"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// GraphVersion is the schema version string emitted on disk (spec.md §6).
const GraphVersion = "1.0.0"

// Key formats a NodeId as the "<programName>::<stateHash>" string used as
// the map key in the on-disk and in-memory graph representations.
func (id NodeId) Key() string {
	return id.ProgramName + "::" + id.StateHash
}

// IsPending reports whether this NodeId is the placeholder a freshly
// learned Path starts with before re-identification (spec.md §4.C8).
func (id NodeId) IsPending() bool {
	return id.StateHash == PendingStateHash
}

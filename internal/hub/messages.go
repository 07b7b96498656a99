package hub

import "github.com/rohits-web03/clipdrop/internal/blobstore"

// Frame types on the progress channel.
const (
	TypeSubscribe    = "subscribe"
	TypeUnsubscribe  = "unsubscribe"
	TypeSubscribed   = "subscribed"
	TypeUnsubscribed = "unsubscribed"
	TypeProgress     = "progress"
	TypeError        = "error"
)

// ClientMessage is what subscribers send.
type ClientMessage struct {
	Type        string `json:"type"`
	ClipboardID string `json:"clipboard_id"`
}

// Frame is a control or error frame.
type Frame struct {
	Type        string `json:"type"`
	ClipboardID string `json:"clipboard_id,omitempty"`
	Error       string `json:"error,omitempty"`
}

// ProgressFrame is the normalized view of an upload's status. The HTTP
// progress endpoint returns the same shape.
type ProgressFrame struct {
	Type        string              `json:"type"`
	ClipboardID string              `json:"clipboard_id"`
	Status      string              `json:"status"`
	Completed   bool                `json:"completed"`
	Progress    blobstore.Progress  `json:"progress"`
	Error       string              `json:"error,omitempty"`
	FileInfo    *blobstore.FileInfo `json:"file_info,omitempty"`
}

// NewProgressFrame normalizes a raw store status.
func NewProgressFrame(id string, st blobstore.Status) ProgressFrame {
	status := st.State()
	completed := st.Completed || status == blobstore.StatusCompleted
	switch {
	case completed:
		status = blobstore.StatusCompleted
	case status == "":
		status = blobstore.StatusUploading
	}

	p := st.Progress
	if p.Percentage == 0 && p.TotalChunks > 0 {
		p.Percentage = float64(p.ChunksUploaded) / float64(p.TotalChunks) * 100
	}
	if completed {
		p.Percentage = 100
		p.EstimatedRemainingSeconds = nil
	}
	p.Percentage = min(max(p.Percentage, 0), 100)

	return ProgressFrame{
		Type:        TypeProgress,
		ClipboardID: id,
		Status:      status,
		Completed:   completed,
		Progress:    p,
		Error:       st.Error,
		FileInfo:    st.FileInfo,
	}
}

// Terminal reports whether the frame ends the upload's lifecycle.
func (f ProgressFrame) Terminal() bool {
	return f.Completed || f.Status == blobstore.StatusFailed
}

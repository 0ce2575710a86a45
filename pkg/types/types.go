package types

// SharedDocumentVersion is the on-wire schema version written into every shared document
const SharedDocumentVersion = 1

// Field names of the shared document as stored remotely
const (
	FieldVersion          = "version"
	FieldUserID           = "userId"
	FieldIframeURL        = "iframeUrl"
	FieldComments         = "comments"
	FieldLastCommentsSeen = "lastCommentsSeen"
)

// NoCommentSeen marks a student view whose read marker is unknown
const NoCommentSeen int64 = -1

// SessionKind identifies which variant of session parameters started an engine
type SessionKind string

const (
	SessionKindDemo          SessionKind = "ephemeral-demo"
	SessionKindTestStub      SessionKind = "test-stub"
	SessionKindAuthenticated SessionKind = "authenticated"
)

// Comment is a message sent by the owner of a shared document to a recipient
// Time is milliseconds since the Unix epoch
type Comment struct {
	Recipient string `json:"recipient" yaml:"recipient"`
	Message   string `json:"message" yaml:"message"`
	Time      int64  `json:"time" yaml:"time"`
}

// SharedDocument is the per-student record kept in the classroom collection
// IframeURL nil means the student shared before and has since unshared;
// comments and read markers survive unsharing.
type SharedDocument struct {
	Version          int              `json:"version"`
	UserID           string           `json:"userId"`
	IframeURL        *string          `json:"iframeUrl"`
	Comments         []Comment        `json:"comments"`
	LastCommentsSeen map[string]int64 `json:"lastCommentsSeen"`
}

// NewSharedDocument returns a document with empty comment and read-marker structures
func NewSharedDocument(userID string, iframeURL *string) *SharedDocument {
	return &SharedDocument{
		Version:          SharedDocumentVersion,
		UserID:           userID,
		IframeURL:        iframeURL,
		Comments:         []Comment{},
		LastCommentsSeen: map[string]int64{},
	}
}

// IsShared reports whether the document currently exposes an interactive
func (d *SharedDocument) IsShared() bool {
	return d != nil && d.IframeURL != nil
}

// CommentReceived is a comment addressed to a student, tagged with its sender
type CommentReceived struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
	Time      int64  `json:"time"`
}

// Comment returns the stored form of the comment as kept in the sender's document
func (c CommentReceived) Comment() Comment {
	return Comment{Recipient: c.Recipient, Message: c.Message, Time: c.Time}
}

// StudentView is the display-ready projection of one visible student
type StudentView struct {
	UserID           string            `json:"userId"`
	DisplayName      string            `json:"displayName"`
	IframeURL        *string           `json:"iframeUrl"`
	IsCurrentUser    bool              `json:"isCurrentUser"`
	CommentsReceived []CommentReceived `json:"commentsReceived"`
	LastCommentSeen  int64             `json:"lastCommentSeen"`
}

// ClassShareState is the view model recomputed from every collection snapshot
// It is replaced as a whole and never mutated after publication.
type ClassShareState struct {
	InteractiveName     string        `json:"interactiveName"`
	Type                SessionKind   `json:"type"`
	CurrentUserIsShared bool          `json:"currentUserIsShared"`
	Students            []StudentView `json:"students"`
}

// UserMap maps user ids to display names
// A user without an entry is never shown in the roster.
type UserMap map[string]string

// Copy returns an independent copy of the map
func (m UserMap) Copy() UserMap {
	out := make(UserMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// CurrentUser returns the view of the current user, or nil when not on the roster
func (s *ClassShareState) CurrentUser() *StudentView {
	if s == nil {
		return nil
	}
	for i := range s.Students {
		if s.Students[i].IsCurrentUser {
			return &s.Students[i]
		}
	}
	return nil
}

// Student returns the roster entry for userID
func (s *ClassShareState) Student(userID string) (*StudentView, bool) {
	if s == nil {
		return nil, false
	}
	for i := range s.Students {
		if s.Students[i].UserID == userID {
			return &s.Students[i], true
		}
	}
	return nil, false
}

// UnreadCount counts comments the current user received from otherUserID
// that are newer than the current user's read marker for that sender
func (s *ClassShareState) UnreadCount(otherUserID string) int {
	me := s.CurrentUser()
	if me == nil {
		return 0
	}
	seen := s.lastSeen(otherUserID)
	count := 0
	for _, c := range me.CommentsReceived {
		if c.Sender == otherUserID && isUnread(c, seen) {
			count++
		}
	}
	return count
}

// FirstUnreadIndex returns the index into the current user's CommentsReceived of the
// first unread comment from otherUserID, or -1 when everything from that sender is read
func (s *ClassShareState) FirstUnreadIndex(otherUserID string) int {
	me := s.CurrentUser()
	if me == nil {
		return -1
	}
	seen := s.lastSeen(otherUserID)
	for i, c := range me.CommentsReceived {
		if c.Sender == otherUserID && isUnread(c, seen) {
			return i
		}
	}
	return -1
}

// TotalUnread sums UnreadCount over every sender with a roster entry
func (s *ClassShareState) TotalUnread() int {
	if s == nil {
		return 0
	}
	total := 0
	for _, st := range s.Students {
		if st.IsCurrentUser {
			continue
		}
		total += s.UnreadCount(st.UserID)
	}
	return total
}

// with no read marker every comment is unread, whatever its time
func isUnread(c CommentReceived, seen int64) bool {
	return seen == NoCommentSeen || c.Time > seen
}

func (s *ClassShareState) lastSeen(otherUserID string) int64 {
	if other, ok := s.Student(otherUserID); ok {
		return other.LastCommentSeen
	}
	return NoCommentSeen
}

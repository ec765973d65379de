package feed

// Comment is a reply on a review thread, joined with its author's profile.
type Comment struct {
	UserID     string `json:"user_id" yaml:"author"`
	AuthorName string `json:"author_name,omitempty" yaml:"author_name,omitempty"`
	AvatarURL  string `json:"avatar_url,omitempty" yaml:"avatar_url,omitempty"`
	Content    string `json:"content" yaml:"body"`
}

func (c Comment) AuthorID() string { return c.UserID }
func (c Comment) Body() string     { return c.Content }

// Notification is an entry in a user's inbox. ActorID is the user whose
// action produced it.
type Notification struct {
	ActorID       string `json:"actor_id" yaml:"author"`
	Type          string `json:"type" yaml:"type,omitempty"`
	Message       string `json:"message" yaml:"body"`
	ReferenceSlug string `json:"reference_slug,omitempty" yaml:"reference_slug,omitempty"`
}

func (n Notification) AuthorID() string { return n.ActorID }
func (n Notification) Body() string     { return n.Message }

var (
	_ Payload = Comment{}
	_ Payload = Notification{}
)

// Merger is implemented by payloads that can absorb a partial stub from
// the change feed without losing fields the stub omits.
type Merger[P any] interface {
	Merge(stub P) P
}

// Merge overlays the non-empty fields of stub. Joined profile fields are
// kept when the stub does not carry them.
func (c Comment) Merge(stub Comment) Comment {
	if stub.UserID != "" {
		c.UserID = stub.UserID
	}
	if stub.AuthorName != "" {
		c.AuthorName = stub.AuthorName
	}
	if stub.AvatarURL != "" {
		c.AvatarURL = stub.AvatarURL
	}
	if stub.Content != "" {
		c.Content = stub.Content
	}
	return c
}

// Merge overlays the non-empty fields of stub.
func (n Notification) Merge(stub Notification) Notification {
	if stub.ActorID != "" {
		n.ActorID = stub.ActorID
	}
	if stub.Type != "" {
		n.Type = stub.Type
	}
	if stub.Message != "" {
		n.Message = stub.Message
	}
	if stub.ReferenceSlug != "" {
		n.ReferenceSlug = stub.ReferenceSlug
	}
	return n
}

// MergePayload overlays stub onto existing when P implements Merger,
// and returns stub unchanged otherwise.
func MergePayload[P Payload](existing, stub P) P {
	if m, ok := any(existing).(Merger[P]); ok {
		return m.Merge(stub)
	}
	return stub
}

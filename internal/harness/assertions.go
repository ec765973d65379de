package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/feedsync/internal/feed"
)

func checkAssertion[P feed.Payload](a Assertion, items []feed.Item[P], unread int, authorName func(P) string) error {
	switch a.Type {
	case AssertItems:
		return checkItems(a.Items, items, authorName)
	case AssertLen:
		if len(items) != a.Count {
			return fmt.Errorf("expected %d items, got %d", a.Count, len(items))
		}
	case AssertUnread:
		if unread != a.Count {
			return fmt.Errorf("expected %d unread, got %d", a.Count, unread)
		}
	case AssertAbsent:
		for _, id := range a.IDs {
			for _, it := range items {
				if it.ID == id {
					return fmt.Errorf("%s is listed", id)
				}
			}
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

func checkItems[P feed.Payload](want []ItemExpect, got []feed.Item[P], authorName func(P) string) error {
	if len(want) != len(got) {
		return fmt.Errorf("expected %d items, got %d: %s", len(want), len(got), strings.Join(render(got), " "))
	}

	var mismatches []string
	for i, w := range want {
		g := got[i]
		if g.ID != w.ID {
			mismatches = append(mismatches, fmt.Sprintf("[%d] id: expected %s, got %s", i, w.ID, g.ID))
			continue
		}
		if w.Origin != "" && string(g.Origin) != w.Origin {
			mismatches = append(mismatches, fmt.Sprintf("[%d] %s origin: expected %s, got %s", i, w.ID, w.Origin, g.Origin))
		}
		if w.Body != "" && g.Payload.Body() != w.Body {
			mismatches = append(mismatches, fmt.Sprintf("[%d] %s body: expected %q, got %q", i, w.ID, w.Body, g.Payload.Body()))
		}
		if w.AuthorName != "" && authorName(g.Payload) != w.AuthorName {
			mismatches = append(mismatches, fmt.Sprintf("[%d] %s author_name: expected %q, got %q", i, w.ID, w.AuthorName, authorName(g.Payload)))
		}
		if w.ReadState != "" && string(g.ReadState) != w.ReadState {
			mismatches = append(mismatches, fmt.Sprintf("[%d] %s read_state: expected %s, got %s", i, w.ID, w.ReadState, g.ReadState))
		}
	}
	if len(mismatches) > 0 {
		return fmt.Errorf("%s", strings.Join(mismatches, "; "))
	}
	return nil
}

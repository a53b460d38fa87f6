package events

import "testing"

func TestKindIsValid(t *testing.T) {
	for _, k := range []Kind{KindCreated, KindUpdated, KindStatusChanged, KindDeleted, KindRestored, KindHardDeleted} {
		if !k.IsValid() {
			t.Errorf("%q should be valid", k)
		}
	}
	if Kind("exploded").IsValid() {
		t.Error("unknown kind should be invalid")
	}
}

func TestTopicFor(t *testing.T) {
	for kind, want := range map[Kind]string{
		KindCreated:       TopicItemCreated,
		KindUpdated:       TopicItemUpdated,
		KindStatusChanged: TopicItemStatusChanged,
		KindDeleted:       TopicItemDeleted,
		KindRestored:      TopicItemRestored,
		KindHardDeleted:   TopicItemHardDeleted,
	} {
		got, err := TopicFor("item", kind)
		if err != nil || got != want {
			t.Errorf("TopicFor(item, %q) = %q, %v; want %q", kind, got, err, want)
		}
	}

	got, err := TopicFor("progress", KindUpdated)
	if err != nil || got != TopicProgressUpdated {
		t.Errorf("TopicFor(progress, updated) = %q, %v", got, err)
	}

	// Progress records have exactly one event kind.
	if _, err := TopicFor("progress", KindDeleted); err == nil {
		t.Error("expected error for progress deleted")
	}
	if _, err := TopicFor("item", Kind("exploded")); err == nil {
		t.Error("expected error for unknown kind")
	}
}

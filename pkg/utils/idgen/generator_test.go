package idgen

import (
	"strings"
	"testing"
)

func TestSimpleGenerator(t *testing.T) {
	gen := NewSimpleGenerator()

	id1 := gen.Generate()
	id2 := gen.Generate()

	if id1 == id2 {
		t.Error("Generated IDs should be unique")
	}
	if len(id1) == 0 {
		t.Error("Generated ID should not be empty")
	}

	prefixedID := gen.GenerateWithPrefix("test")
	if !strings.HasPrefix(prefixedID, "test_") {
		t.Errorf("Expected prefixed ID to start with 'test_', got: %s", prefixedID)
	}
}

func TestUUIDGenerator(t *testing.T) {
	gen := NewUUIDGenerator()

	id1 := gen.Generate()
	id2 := gen.Generate()

	if id1 == id2 {
		t.Error("Generated IDs should be unique")
	}
	if len(id1) == 0 {
		t.Error("Generated ID should not be empty")
	}

	prefixedID := gen.GenerateWithPrefix("uuid")
	if !strings.HasPrefix(prefixedID, "uuid_") {
		t.Errorf("Expected prefixed ID to start with 'uuid_', got: %s", prefixedID)
	}
}

func TestMessageIDGenerator(t *testing.T) {
	gen := NewMessageIDGenerator()

	msgID := gen.GenerateMessageID()
	if !strings.HasPrefix(msgID, "msg_") {
		t.Errorf("Expected message ID to start with 'msg_', got: %s", msgID)
	}

	batchID := gen.GenerateBatchID()
	if !strings.HasPrefix(batchID, "batch_") {
		t.Errorf("Expected batch ID to start with 'batch_', got: %s", batchID)
	}
}

func TestMessageIDGeneratorWithCustom(t *testing.T) {
	gen := NewMessageIDGeneratorWithCustom(NewSimpleGenerator())

	msgID := gen.GenerateMessageID()
	if !strings.HasPrefix(msgID, "msg_") {
		t.Errorf("Expected message ID to start with 'msg_', got: %s", msgID)
	}
}

func TestGlobalGenerateMessageID(t *testing.T) {
	msgID := GenerateMessageID()
	if !strings.HasPrefix(msgID, "msg_") {
		t.Errorf("Expected message ID to start with 'msg_', got: %s", msgID)
	}

	// The default generator produces msg_<timestamp>_<counter>_<random>.
	parts := strings.Split(msgID, "_")
	if len(parts) != 4 {
		t.Errorf("Expected timestamp-counter form with 4 segments, got: %s", msgID)
	}
}

func TestIDUniqueness(t *testing.T) {
	gen := NewSimpleGenerator()
	ids := make(map[string]bool)
	count := 1000

	for i := 0; i < count; i++ {
		id := gen.Generate()
		if ids[id] {
			t.Errorf("Duplicate ID generated: %s", id)
		}
		ids[id] = true
	}

	if len(ids) != count {
		t.Errorf("Expected %d unique IDs, got %d", count, len(ids))
	}
}

func TestConcurrentGeneration(t *testing.T) {
	gen := NewSimpleGenerator()
	idCh := make(chan string, 100)
	done := make(chan bool, 10)

	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 10; j++ {
				idCh <- gen.Generate()
			}
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}
	close(idCh)

	ids := make(map[string]bool)
	for id := range idCh {
		if ids[id] {
			t.Errorf("Duplicate ID generated in concurrent test: %s", id)
		}
		ids[id] = true
	}

	if len(ids) != 100 {
		t.Errorf("Expected 100 unique IDs, got %d", len(ids))
	}
}

func BenchmarkSimpleGenerator(b *testing.B) {
	gen := NewSimpleGenerator()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		gen.Generate()
	}
}

func BenchmarkMessageIDGenerator(b *testing.B) {
	gen := NewMessageIDGenerator()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		gen.GenerateMessageID()
	}
}

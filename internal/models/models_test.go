package models

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

// gormTag extracts the gorm tag from a struct field.
func gormTag(t *testing.T, typ reflect.Type, fieldName string) string {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	return f.Tag.Get("gorm")
}

// assertGormTag checks that a struct field's gorm tag contains the expected value.
func assertGormTag(t *testing.T, typ reflect.Type, fieldName, expected string) {
	t.Helper()
	tag := gormTag(t, typ, fieldName)
	if !strings.Contains(tag, expected) {
		t.Errorf("%s.%s gorm tag = %q, want to contain %q", typ.Name(), fieldName, tag, expected)
	}
}

// assertFieldType checks that a struct field has the expected Go type.
func assertFieldType(t *testing.T, typ reflect.Type, fieldName, expectedType string) {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	got := f.Type.String()
	if got != expectedType {
		t.Errorf("%s.%s type = %q, want %q", typ.Name(), fieldName, got, expectedType)
	}
}

func TestConversation_Fields(t *testing.T) {
	typ := reflect.TypeOf(Conversation{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "ID", "size:36")
	assertGormTag(t, typ, "UserID", "not null")
	assertGormTag(t, typ, "UserID", "index:idx_user_expert")
	assertGormTag(t, typ, "ExpertID", "index:idx_user_expert")
	assertGormTag(t, typ, "Status", "default:active")
	assertGormTag(t, typ, "Status", "index")
	assertGormTag(t, typ, "LastMessageText", "size:512")
	assertGormTag(t, typ, "IntakeSent", "default:false")

	// Nullable until the first message lands.
	assertFieldType(t, typ, "LastMessageAt", "*time.Time")
}

func TestMessage_Fields(t *testing.T) {
	typ := reflect.TypeOf(Message{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "ConversationID", "not null")
	assertGormTag(t, typ, "ConversationID", "index")
	assertGormTag(t, typ, "SenderID", "not null")
	assertGormTag(t, typ, "Body", "type:text")
	assertGormTag(t, typ, "Metadata", "type:json")
	assertGormTag(t, typ, "SentAt", "index")
}

func TestMessage_JSONTags(t *testing.T) {
	typ := reflect.TypeOf(Message{})
	want := map[string]string{
		"ID":             "id",
		"ConversationID": "conversation_id",
		"SenderID":       "sender_id",
		"RecipientID":    "recipient_id",
		"Body":           "body",
		"SentAt":         "sent_at",
	}
	for field, tag := range want {
		f, ok := typ.FieldByName(field)
		if !ok {
			t.Fatalf("Message.%s: field not found", field)
		}
		if got := strings.Split(f.Tag.Get("json"), ",")[0]; got != tag {
			t.Errorf("Message.%s json tag = %q, want %q", field, got, tag)
		}
	}
}

func TestDiagnosisReport_Fields(t *testing.T) {
	typ := reflect.TypeOf(DiagnosisReport{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "UserID", "not null")
	assertGormTag(t, typ, "UserID", "index")
	assertGormTag(t, typ, "Summary", "type:text")
	assertFieldType(t, typ, "CreatedAt", "time.Time")
}

func TestConversationStatusConstants(t *testing.T) {
	if ConversationActive != "active" || ConversationClosed != "closed" {
		t.Errorf("status constants = %q, %q", ConversationActive, ConversationClosed)
	}
}

func TestMessageImmutabilityShape(t *testing.T) {
	// Messages carry no UpdatedAt: rows are written once and never edited.
	if _, ok := reflect.TypeOf(Message{}).FieldByName("UpdatedAt"); ok {
		t.Error("Message should not have an UpdatedAt field")
	}
	var zero time.Time
	if (Message{}).SentAt != zero {
		t.Error("zero Message should have zero SentAt")
	}
}

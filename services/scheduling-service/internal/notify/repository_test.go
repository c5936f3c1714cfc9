package notify

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
)

func TestRepositoryInsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec("INSERT INTO notifications").
		WithArgs("evt-1", "a1", "org-1", "created", "5511", "evolution", StatusSent, "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	repo := NewRepository(mock)
	if err := repo.Insert(context.Background(), Entry{
		EventID:        "evt-1",
		AppointmentID:  "a1",
		OrganizationID: "org-1",
		Kind:           KindCreated,
		Recipient:      "5511",
		Provider:       "evolution",
		Status:         StatusSent,
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

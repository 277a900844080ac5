package entity

// TableSession is the persisted billing state of a table. A table without a
// record is OPEN.
type TableSession struct {
	TableID       TableID
	Status        TableStatus
	PaymentMethod PaymentMethod
}

// OpenSession is the implied state of a table with no record.
func OpenSession(id TableID) TableSession {
	return TableSession{TableID: id, Status: TableOpen}
}

// Locked reports whether the client screen should stop accepting orders.
func (s TableSession) Locked() bool {
	return s.Status == TableClosingRequested
}

/*
Copyright the Reciprocal Reviews contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package common

import (
	"context"
	"database/sql"
	errors2 "errors"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/reciprocalreviews/ledger/ledger"
)

const (
	volunteerColumns  = "id, scholar, role, active, accepted, expertise, created_at"
	assignmentColumns = "id, role, scholar, submission, venue, bid, approved, completed"
)

type roleTables struct {
	Roles       string
	Volunteers  string
	Assignments string
}

// RoleStore persists venue roles, the scholars volunteering for them, and
// reviewing assignments.
type RoleStore struct {
	readDB  *sql.DB
	writeDB *sql.DB
	table   roleTables
}

func NewRoleStore(readDB, writeDB *sql.DB, opts NewDBOpts) (*RoleStore, error) {
	tables, err := GetTableNames(opts.TablePrefix)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get table names")
	}
	store := &RoleStore{
		readDB:  readDB,
		writeDB: writeDB,
		table: roleTables{
			Roles:       tables.Roles,
			Volunteers:  tables.Volunteers,
			Assignments: tables.Assignments,
		},
	}
	if opts.CreateSchema {
		if err = InitSchema(writeDB, store.GetSchema()); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func (db *RoleStore) GetRole(ctx context.Context, id ledger.RoleID) (*ledger.Role, error) {
	query, err := NewSelect("id, venue, name, description, amount, invited, approver").
		From(db.table.Roles).
		Where("id = $1").
		Compile()
	if err != nil {
		return nil, errors.Wrap(err, "failed compiling query")
	}
	logger.Debug(query, id)
	row := db.readDB.QueryRowContext(ctx, query, string(id))

	var (
		r        ledger.Role
		rid      string
		approver sql.NullString
	)
	err = row.Scan(&rid, &r.Venue, &r.Name, &r.Description, &r.Amount, &r.Invited, &approver)
	if errors2.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "error querying role [%s]", id)
	}
	r.ID = ledger.RoleID(rid)
	if approver.Valid {
		r.Approver = ledger.RoleID(approver.String)
	}
	return &r, nil
}

func (db *RoleStore) InsertRole(ctx context.Context, role *ledger.Role) error {
	query, err := NewInsertInto(db.table.Roles).
		Rows("id, venue, name, description, amount, invited, approver").
		Compile()
	if err != nil {
		return errors.Wrap(err, "failed compiling query")
	}
	var approver sql.NullString
	if role.Approver != "" {
		approver = sql.NullString{String: string(role.Approver), Valid: true}
	}
	logger.Debug(query, role.ID, role.Name)
	_, err = db.writeDB.ExecContext(ctx, query,
		string(role.ID), string(role.Venue), role.Name, role.Description, role.Amount, role.Invited, approver,
	)
	return errors.Wrapf(err, "error inserting role [%s]", role.ID)
}

func (db *RoleStore) GetVolunteer(ctx context.Context, id ledger.VolunteerID) (*ledger.Volunteer, error) {
	query, err := NewSelect(volunteerColumns).From(db.table.Volunteers).Where("id = $1").Compile()
	if err != nil {
		return nil, errors.Wrap(err, "failed compiling query")
	}
	logger.Debug(query, id)
	v, err := scanVolunteer(db.readDB.QueryRowContext(ctx, query, string(id)))
	if err != nil {
		return nil, errors.Wrapf(err, "error querying volunteer [%s]", id)
	}
	return v, nil
}

func (db *RoleStore) FindVolunteer(ctx context.Context, scholar ledger.ScholarID, role ledger.RoleID) (*ledger.Volunteer, error) {
	query, err := NewSelect(volunteerColumns).
		From(db.table.Volunteers).
		Where("scholar = $1 AND role = $2").
		Compile()
	if err != nil {
		return nil, errors.Wrap(err, "failed compiling query")
	}
	logger.Debug(query, scholar, role)
	v, err := scanVolunteer(db.readDB.QueryRowContext(ctx, query, string(scholar), string(role)))
	if err != nil {
		return nil, errors.Wrapf(err, "error querying volunteer [%s, %s]", scholar, role)
	}
	return v, nil
}

func (db *RoleStore) InsertVolunteer(ctx context.Context, volunteer *ledger.Volunteer) error {
	query, err := NewInsertInto(db.table.Volunteers).Rows(volunteerColumns).Compile()
	if err != nil {
		return errors.Wrap(err, "failed compiling query")
	}
	created := volunteer.Created
	if created.IsZero() {
		created = time.Now().UTC()
	}
	logger.Debug(query, volunteer.ID, volunteer.Scholar, volunteer.Role)
	_, err = db.writeDB.ExecContext(ctx, query,
		string(volunteer.ID), string(volunteer.Scholar), string(volunteer.Role),
		volunteer.Active, volunteer.Accepted, volunteer.Expertise, created,
	)
	return errors.Wrapf(err, "error inserting volunteer [%s]", volunteer.ID)
}

// AcceptVolunteer moves an invited commitment to accepted. A false return
// means the commitment was not awaiting a response.
func (db *RoleStore) AcceptVolunteer(ctx context.Context, id ledger.VolunteerID) (bool, error) {
	query, err := NewUpdate(db.table.Volunteers).
		Set("accepted, active").
		Where("id = $3 AND accepted = $4").
		Compile()
	if err != nil {
		return false, errors.Wrap(err, "failed compiling query")
	}
	logger.Debug(query, id)
	res, err := db.writeDB.ExecContext(ctx, query, ledger.InviteAccepted, true, string(id), ledger.InviteInvited)
	if err != nil {
		return false, errors.Wrapf(err, "error updating volunteer [%s]", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrapf(err, "error updating volunteer [%s]", id)
	}
	return n > 0, nil
}

// CountScholarVolunteeringInVenue counts the scholar's commitments across
// all of the venue's roles.
func (db *RoleStore) CountScholarVolunteeringInVenue(ctx context.Context, scholar ledger.ScholarID, venue ledger.VenueID) (int, error) {
	join := fmt.Sprintf("JOIN %s ON %s.role = %s.id", db.table.Roles, db.table.Volunteers, db.table.Roles)
	query, err := NewSelect("COUNT(*)").
		From(db.table.Volunteers, join).
		Where(fmt.Sprintf("%s.scholar = $1 AND %s.venue = $2", db.table.Volunteers, db.table.Roles)).
		Compile()
	if err != nil {
		return 0, errors.Wrap(err, "failed compiling query")
	}
	logger.Debug(query, scholar, venue)
	var count int
	if err := db.readDB.QueryRowContext(ctx, query, string(scholar), string(venue)).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "error counting volunteers")
	}
	return count, nil
}

func (db *RoleStore) GetAssignment(ctx context.Context, id ledger.AssignmentID) (*ledger.Assignment, error) {
	query, err := NewSelect(assignmentColumns).From(db.table.Assignments).Where("id = $1").Compile()
	if err != nil {
		return nil, errors.Wrap(err, "failed compiling query")
	}
	logger.Debug(query, id)
	row := db.readDB.QueryRowContext(ctx, query, string(id))

	var (
		a                              ledger.Assignment
		aid, role, scholar, submission string
		venue                          string
	)
	err = row.Scan(&aid, &role, &scholar, &submission, &venue, &a.Bid, &a.Approved, &a.Completed)
	if errors2.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "error querying assignment [%s]", id)
	}
	a.ID = ledger.AssignmentID(aid)
	a.Role = ledger.RoleID(role)
	a.Scholar = ledger.ScholarID(scholar)
	a.Submission = ledger.SubmissionID(submission)
	a.Venue = ledger.VenueID(venue)
	return &a, nil
}

func (db *RoleStore) InsertAssignment(ctx context.Context, assignment *ledger.Assignment) error {
	query, err := NewInsertInto(db.table.Assignments).Rows(assignmentColumns).Compile()
	if err != nil {
		return errors.Wrap(err, "failed compiling query")
	}
	logger.Debug(query, assignment.ID, assignment.Scholar)
	_, err = db.writeDB.ExecContext(ctx, query,
		string(assignment.ID), string(assignment.Role), string(assignment.Scholar),
		string(assignment.Submission), string(assignment.Venue),
		assignment.Bid, assignment.Approved, assignment.Completed,
	)
	return errors.Wrapf(err, "error inserting assignment [%s]", assignment.ID)
}

// MarkCompleted flips the assignment to completed. A false return means it
// was already completed, so compensation must not be granted again.
func (db *RoleStore) MarkCompleted(ctx context.Context, id ledger.AssignmentID) (bool, error) {
	query, err := NewUpdate(db.table.Assignments).
		Set("completed").
		Where("id = $2 AND completed = $3").
		Compile()
	if err != nil {
		return false, errors.Wrap(err, "failed compiling query")
	}
	logger.Debug(query, id)
	res, err := db.writeDB.ExecContext(ctx, query, true, string(id), false)
	if err != nil {
		return false, errors.Wrapf(err, "error updating assignment [%s]", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrapf(err, "error updating assignment [%s]", id)
	}
	return n > 0, nil
}

func scanVolunteer(row scannable) (*ledger.Volunteer, error) {
	var (
		v                 ledger.Volunteer
		id, scholar, role string
	)
	err := row.Scan(&id, &scholar, &role, &v.Active, &v.Accepted, &v.Expertise, &v.Created)
	if errors2.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	v.ID = ledger.VolunteerID(id)
	v.Scholar = ledger.ScholarID(scholar)
	v.Role = ledger.RoleID(role)
	return &v, nil
}

func (db *RoleStore) GetSchema() string {
	return fmt.Sprintf(`
		-- Roles
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT NOT NULL PRIMARY KEY,
			venue TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL,
			amount INT NOT NULL,
			invited BOOLEAN NOT NULL,
			approver TEXT
		);
		-- Volunteers
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT NOT NULL PRIMARY KEY,
			scholar TEXT NOT NULL,
			role TEXT NOT NULL,
			active BOOLEAN NOT NULL,
			accepted TEXT NOT NULL,
			expertise TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			UNIQUE (scholar, role)
		);
		-- Assignments
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT NOT NULL PRIMARY KEY,
			role TEXT NOT NULL,
			scholar TEXT NOT NULL,
			submission TEXT NOT NULL,
			venue TEXT NOT NULL,
			bid BOOLEAN NOT NULL,
			approved BOOLEAN NOT NULL,
			completed BOOLEAN NOT NULL
		);`,
		db.table.Roles, db.table.Volunteers, db.table.Assignments,
	)
}

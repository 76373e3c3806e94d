package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/sma-billing-api/internal/models"
	"github.com/noah-isme/sma-billing-api/internal/repository"
)

// memDB is an in-memory database shared by the stores below. Writes made
// inside memUnitOfWork.Do are undone when the callback fails.
type memDB struct {
	mu sync.Mutex

	assessments map[int64]models.Assessment
	terms       map[int64]models.PaymentTerm
	payments    map[int64]models.Payment
	reminders   []models.PaymentReminder
	workflows   map[int64]models.Workflow
	instances   map[int64]models.WorkflowInstance
	approvals   map[int64]models.WorkflowApproval
	users       map[int64]models.User
	audits      []models.AuditLog
	nextID      int64

	// faults makes the named operation fail, e.g. "payments.Create".
	faults map[string]error
}

func newMemDB() *memDB {
	return &memDB{
		assessments: map[int64]models.Assessment{},
		terms:       map[int64]models.PaymentTerm{},
		payments:    map[int64]models.Payment{},
		workflows:   map[int64]models.Workflow{},
		instances:   map[int64]models.WorkflowInstance{},
		approvals:   map[int64]models.WorkflowApproval{},
		users:       map[int64]models.User{},
		faults:      map[string]error{},
		nextID:      100,
	}
}

func (db *memDB) id() int64 {
	db.nextID++
	return db.nextID
}

func (db *memDB) fault(op string) error {
	return db.faults[op]
}

type memSnapshot struct {
	assessments map[int64]models.Assessment
	terms       map[int64]models.PaymentTerm
	payments    map[int64]models.Payment
	reminders   []models.PaymentReminder
	workflows   map[int64]models.Workflow
	instances   map[int64]models.WorkflowInstance
	approvals   map[int64]models.WorkflowApproval
	audits      []models.AuditLog
	nextID      int64
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (db *memDB) snapshot() memSnapshot {
	instances := make(map[int64]models.WorkflowInstance, len(db.instances))
	for id, instance := range db.instances {
		instances[id] = *cloneInstance(&instance)
	}
	return memSnapshot{
		assessments: copyMap(db.assessments),
		terms:       copyMap(db.terms),
		payments:    copyMap(db.payments),
		reminders:   append([]models.PaymentReminder(nil), db.reminders...),
		workflows:   copyMap(db.workflows),
		instances:   instances,
		approvals:   copyMap(db.approvals),
		audits:      append([]models.AuditLog(nil), db.audits...),
		nextID:      db.nextID,
	}
}

func (db *memDB) restore(s memSnapshot) {
	db.assessments = s.assessments
	db.terms = s.terms
	db.payments = s.payments
	db.reminders = s.reminders
	db.workflows = s.workflows
	db.instances = s.instances
	db.approvals = s.approvals
	db.audits = s.audits
	db.nextID = s.nextID
}

func (db *memDB) termsOf(assessmentID int64) []models.PaymentTerm {
	var out []models.PaymentTerm
	for _, term := range db.terms {
		if term.AssessmentID == assessmentID {
			out = append(out, term)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TermOrder < out[j].TermOrder })
	return out
}

func (db *memDB) addAssessment(userID int64, total string) models.Assessment {
	a := models.Assessment{ID: db.id(), UserID: userID, SchoolYear: "2026-2027", Semester: "1st", TotalAmount: dec(total)}
	db.assessments[a.ID] = a
	return a
}

func (db *memDB) addTerm(assessmentID int64, order int, amount, balance string, due time.Time) models.PaymentTerm {
	a, b := dec(amount), dec(balance)
	term := models.PaymentTerm{
		ID:           db.id(),
		AssessmentID: assessmentID,
		TermName:     termName(order),
		TermOrder:    order,
		Amount:       a,
		Balance:      b,
		DueDate:      due,
		Status:       models.DeriveTermStatus(a, b),
		Version:      1,
	}
	db.terms[term.ID] = term
	return term
}

func (db *memDB) addWorkflow(wf models.Workflow) models.Workflow {
	wf.ID = db.id()
	db.workflows[wf.ID] = wf
	return wf
}

func (db *memDB) addUser(id int64, role models.UserRole) {
	db.users[id] = models.User{ID: id, Email: "user@example.edu", FullName: "Test User", Role: role, Active: true}
}

func termName(order int) string {
	names := []string{"Prelim", "Midterm", "Pre-final", "Final"}
	if order >= 1 && order <= len(names) {
		return names[order-1]
	}
	return "Term"
}

type memUnitOfWork struct {
	db    *memDB
	calls int
}

func newMemUnitOfWork(db *memDB) *memUnitOfWork {
	return &memUnitOfWork{db: db}
}

func (u *memUnitOfWork) Repos() Repositories {
	return Repositories{
		Assessments: memAssessments{u.db},
		Terms:       memTerms{u.db},
		Payments:    memPayments{u.db},
		Reminders:   memReminders{u.db},
		Workflows:   memWorkflows{u.db},
		Instances:   memInstances{u.db},
		Approvals:   memApprovals{u.db},
		Users:       memUsers{u.db},
		Audit:       memAudit{u.db},
	}
}

func (u *memUnitOfWork) Do(ctx context.Context, fn func(Repositories) error) error {
	u.calls++
	snap := u.db.snapshot()
	if err := fn(u.Repos()); err != nil {
		u.db.restore(snap)
		return err
	}
	return nil
}

type memAssessments struct{ db *memDB }

func (s memAssessments) FindByID(ctx context.Context, id int64) (*models.Assessment, error) {
	a, ok := s.db.assessments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &a, nil
}

func (s memAssessments) LatestForUser(ctx context.Context, userID int64) (*models.Assessment, error) {
	var latest *models.Assessment
	for _, a := range s.db.assessments {
		if a.UserID != userID {
			continue
		}
		if latest == nil || a.ID > latest.ID {
			copied := a
			latest = &copied
		}
	}
	if latest == nil {
		return nil, sql.ErrNoRows
	}
	return latest, nil
}

type memTerms struct{ db *memDB }

func (s memTerms) ListByAssessment(ctx context.Context, assessmentID int64) ([]models.PaymentTerm, error) {
	if err := s.db.fault("terms.List"); err != nil {
		return nil, err
	}
	return s.db.termsOf(assessmentID), nil
}

func (s memTerms) ListByAssessmentForUpdate(ctx context.Context, assessmentID int64) ([]models.PaymentTerm, error) {
	return s.ListByAssessment(ctx, assessmentID)
}

func (s memTerms) Create(ctx context.Context, term *models.PaymentTerm) error {
	if err := s.db.fault("terms.Create"); err != nil {
		return err
	}
	term.ID = s.db.id()
	if term.Version == 0 {
		term.Version = 1
	}
	s.db.terms[term.ID] = *term
	return nil
}

func (s memTerms) UpdateBalance(ctx context.Context, term *models.PaymentTerm, updatedAt time.Time) error {
	if err := s.db.fault("terms.UpdateBalance"); err != nil {
		return err
	}
	stored, ok := s.db.terms[term.ID]
	if !ok || stored.Version != term.Version {
		return repository.ErrStaleRecord
	}
	stored.Balance = term.Balance
	stored.Status = term.Status
	stored.Version++
	stored.UpdatedAt = updatedAt
	s.db.terms[term.ID] = stored
	term.Version = stored.Version
	term.UpdatedAt = updatedAt
	return nil
}

func (s memTerms) ListOutstandingDueBefore(ctx context.Context, cutoff time.Time) ([]repository.DueTerm, error) {
	var out []repository.DueTerm
	for _, term := range s.db.terms {
		if !term.HasBalance() || term.DueDate.After(cutoff) {
			continue
		}
		out = append(out, repository.DueTerm{PaymentTerm: term, UserID: s.db.assessments[term.AssessmentID].UserID})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].DueDate.Before(out[j].DueDate)
		}
		return out[i].TermOrder < out[j].TermOrder
	})
	return out, nil
}

type memPayments struct{ db *memDB }

func (s memPayments) Create(ctx context.Context, payment *models.Payment) error {
	if err := s.db.fault("payments.Create"); err != nil {
		return err
	}
	payment.ID = s.db.id()
	s.db.payments[payment.ID] = *payment
	return nil
}

func (s memPayments) FindByID(ctx context.Context, id int64) (*models.Payment, error) {
	p, ok := s.db.payments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &p, nil
}

type memReminders struct{ db *memDB }

func (s memReminders) Create(ctx context.Context, reminder *models.PaymentReminder) error {
	if err := s.db.fault("reminders.Create"); err != nil {
		return err
	}
	reminder.ID = s.db.id()
	s.db.reminders = append(s.db.reminders, *reminder)
	return nil
}

func (s memReminders) List(ctx context.Context, filter models.ReminderFilter) ([]models.PaymentReminder, error) {
	var out []models.PaymentReminder
	for i := len(s.db.reminders) - 1; i >= 0; i-- {
		r := s.db.reminders[i]
		if r.UserID != filter.UserID {
			continue
		}
		if len(filter.Types) > 0 && !containsType(filter.Types, r.Type) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s memReminders) ExistsForTermSince(ctx context.Context, termID int64, reminderType models.ReminderType, since time.Time) (bool, error) {
	for _, r := range s.db.reminders {
		if r.PaymentTermID != nil && *r.PaymentTermID == termID && r.Type == reminderType && !r.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func containsType(types []models.ReminderType, t models.ReminderType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

type memWorkflows struct{ db *memDB }

func (s memWorkflows) Create(ctx context.Context, workflow *models.Workflow) error {
	if err := s.db.fault("workflows.Create"); err != nil {
		return err
	}
	workflow.ID = s.db.id()
	s.db.workflows[workflow.ID] = *workflow
	return nil
}

func (s memWorkflows) FindByID(ctx context.Context, id int64) (*models.Workflow, error) {
	wf, ok := s.db.workflows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &wf, nil
}

type memInstances struct{ db *memDB }

func (s memInstances) Create(ctx context.Context, instance *models.WorkflowInstance) error {
	if err := s.db.fault("instances.Create"); err != nil {
		return err
	}
	instance.ID = s.db.id()
	if instance.Version == 0 {
		instance.Version = 1
	}
	s.db.instances[instance.ID] = *cloneInstance(instance)
	return nil
}

func (s memInstances) FindByID(ctx context.Context, id int64) (*models.WorkflowInstance, error) {
	instance, ok := s.db.instances[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return cloneInstance(&instance), nil
}

func (s memInstances) FindByIDForUpdate(ctx context.Context, id int64) (*models.WorkflowInstance, error) {
	return s.FindByID(ctx, id)
}

func (s memInstances) ListBySubject(ctx context.Context, subject models.SubjectRef) ([]models.WorkflowInstance, error) {
	var out []models.WorkflowInstance
	for _, instance := range s.db.instances {
		if instance.WorkflowableType == subject.Type && instance.WorkflowableID == subject.ID {
			out = append(out, *cloneInstance(&instance))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s memInstances) Update(ctx context.Context, instance *models.WorkflowInstance) error {
	if err := s.db.fault("instances.Update"); err != nil {
		return err
	}
	stored, ok := s.db.instances[instance.ID]
	if !ok || stored.Version != instance.Version {
		return repository.ErrStaleRecord
	}
	instance.Version++
	s.db.instances[instance.ID] = *cloneInstance(instance)
	return nil
}

type memApprovals struct{ db *memDB }

func (s memApprovals) CreateBatch(ctx context.Context, approvals []models.WorkflowApproval) error {
	if err := s.db.fault("approvals.CreateBatch"); err != nil {
		return err
	}
	for i := range approvals {
		approvals[i].ID = s.db.id()
		s.db.approvals[approvals[i].ID] = approvals[i]
	}
	return nil
}

func (s memApprovals) FindByID(ctx context.Context, id int64) (*models.WorkflowApproval, error) {
	a, ok := s.db.approvals[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &a, nil
}

func (s memApprovals) ListByInstanceStep(ctx context.Context, instanceID int64, step string) ([]models.WorkflowApproval, error) {
	var out []models.WorkflowApproval
	for _, a := range s.sorted() {
		if a.InstanceID == instanceID && a.StepName == step {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s memApprovals) ListByInstance(ctx context.Context, instanceID int64) ([]models.WorkflowApproval, error) {
	var out []models.WorkflowApproval
	for _, a := range s.sorted() {
		if a.InstanceID == instanceID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s memApprovals) Resolve(ctx context.Context, params repository.ResolveApprovalParams) error {
	a, ok := s.db.approvals[params.ID]
	if !ok || a.Status != models.ApprovalPending {
		return sql.ErrNoRows
	}
	at := params.ApprovedAt
	a.Status = params.Status
	a.Comments = params.Comments
	a.ApprovedAt = &at
	s.db.approvals[params.ID] = a
	return nil
}

func (s memApprovals) sorted() []models.WorkflowApproval {
	out := make([]models.WorkflowApproval, 0, len(s.db.approvals))
	for _, a := range s.db.approvals {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type memUsers struct{ db *memDB }

func (s memUsers) FindByID(ctx context.Context, id int64) (*models.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u, ok := s.db.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &u, nil
}

type memAudit struct{ db *memDB }

func (s memAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if err := s.db.fault("audit.Create"); err != nil {
		return err
	}
	log.ID = s.db.id()
	s.db.audits = append(s.db.audits, *log)
	return nil
}

// recordingDispatcher captures dispatched events.
type recordingDispatcher struct {
	events []models.Event
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, events []models.Event) {
	d.events = append(d.events, events...)
}

func (d *recordingDispatcher) types() []models.EventType {
	out := make([]models.EventType, 0, len(d.events))
	for _, evt := range d.events {
		out = append(out, evt.Type)
	}
	return out
}

// queueStub captures enqueued notifications.
type queueStub struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (q *queueStub) Enqueue(n Notification) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.sent = append(q.sent, n)
	return nil
}

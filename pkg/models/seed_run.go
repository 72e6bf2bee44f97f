package models

import "fmt"

type entry[T any] struct {
	value   T
	removed bool
}

type optionRecord struct {
	question Ref
	option   Option
}

// SeedRun holds every entity of one generation run.
// Entity lists are append-only: removal tombstones an entry so that refs
// handed out earlier stay valid. Only live entries take part in ID assignment
// and prompt building.
type SeedRun struct {
	jobPositions []entry[JobPosition]
	banks        []entry[QuestionBank]
	questions    []entry[Question]
	options      []entry[optionRecord]
}

// NewSeedRun creates an empty run.
func NewSeedRun() *SeedRun {
	return &SeedRun{}
}

// JobPositionEntry is a live job position with its ref.
type JobPositionEntry struct {
	Ref         Ref
	JobPosition JobPosition
}

// QuestionBankEntry is a live question bank with its ref.
type QuestionBankEntry struct {
	Ref          Ref
	QuestionBank QuestionBank
}

// QuestionEntry is a live question with its ref and 1-based position in its bank.
type QuestionEntry struct {
	Ref      Ref
	Question Question
	Position int
}

// OptionEntry is a live option with its ref, owning question, and 1-based
// position within that question.
type OptionEntry struct {
	Ref      Ref
	Question Ref
	Option   Option
	Position int
}

// AddJobPosition appends a job position. Titles are unique per run.
func (r *SeedRun) AddJobPosition(jp JobPosition) (Ref, error) {
	if jp.title == "" {
		return Ref{}, emptyField(EntityJobPosition, "title")
	}
	key := nameKey(jp.title)
	for _, e := range r.jobPositions {
		if !e.removed && nameKey(e.value.title) == key {
			return Ref{}, &ValidationError{
				Kind:    KindDuplicateName,
				Entity:  EntityJobPosition,
				Field:   "title",
				Message: fmt.Sprintf("job position %q already exists in this run", jp.title),
			}
		}
	}
	r.jobPositions = append(r.jobPositions, entry[JobPosition]{value: jp})
	return Ref{Type: EntityJobPosition, Index: len(r.jobPositions) - 1}, nil
}

// AddQuestionBank appends a question bank. At least one job position must
// already exist in the run and the bank's parent must be live. Names are
// unique per job position.
func (r *SeedRun) AddQuestionBank(b QuestionBank) (Ref, error) {
	if b.name == "" {
		return Ref{}, emptyField(EntityQuestionBank, "name")
	}
	if r.Len(EntityJobPosition) == 0 {
		return Ref{}, &ValidationError{
			Kind:    KindMissingParent,
			Entity:  EntityQuestionBank,
			Field:   "job_position",
			Message: "add a job position before adding question banks",
		}
	}
	if !r.Live(b.jobPosition) {
		return Ref{}, &ValidationError{
			Kind:    KindMissingParent,
			Entity:  EntityQuestionBank,
			Field:   "job_position",
			Message: fmt.Sprintf("job position %s is not part of this run", b.jobPosition),
		}
	}
	key := nameKey(b.name)
	for _, e := range r.banks {
		if !e.removed && e.value.jobPosition == b.jobPosition && nameKey(e.value.name) == key {
			return Ref{}, &ValidationError{
				Kind:    KindDuplicateName,
				Entity:  EntityQuestionBank,
				Field:   "name",
				Message: fmt.Sprintf("question bank %q already exists for this job position", b.name),
			}
		}
	}
	r.banks = append(r.banks, entry[QuestionBank]{value: b})
	return Ref{Type: EntityQuestionBank, Index: len(r.banks) - 1}, nil
}

// AddQuestion appends a question and its options. Question texts are unique
// per bank.
func (r *SeedRun) AddQuestion(q Question) (Ref, error) {
	if q.text == "" {
		return Ref{}, emptyField(EntityQuestion, "text")
	}
	if !r.Live(q.bank) {
		return Ref{}, &ValidationError{
			Kind:    KindMissingParent,
			Entity:  EntityQuestion,
			Field:   "question_bank",
			Message: fmt.Sprintf("question bank %s is not part of this run", q.bank),
		}
	}
	if len(q.options) == 0 {
		return Ref{}, &ValidationError{
			Kind:    KindMissingCorrectOption,
			Entity:  EntityQuestion,
			Field:   "options",
			Message: fmt.Sprintf("question %q needs at least one correct option", q.text),
		}
	}
	key := nameKey(q.text)
	for _, e := range r.questions {
		if !e.removed && e.value.bank == q.bank && nameKey(e.value.text) == key {
			return Ref{}, &ValidationError{
				Kind:    KindDuplicateName,
				Entity:  EntityQuestion,
				Field:   "text",
				Message: fmt.Sprintf("question %q already exists in this bank", q.text),
			}
		}
	}

	r.questions = append(r.questions, entry[Question]{value: q})
	ref := Ref{Type: EntityQuestion, Index: len(r.questions) - 1}
	for _, o := range q.options {
		r.options = append(r.options, entry[optionRecord]{value: optionRecord{question: ref, option: o}})
	}
	return ref, nil
}

// RemoveJobPosition tombstones a job position with no live question banks.
func (r *SeedRun) RemoveJobPosition(ref Ref) error {
	if err := r.checkRemovable(ref, EntityJobPosition); err != nil {
		return err
	}
	for _, e := range r.banks {
		if !e.removed && e.value.jobPosition == ref {
			return hasDependents(ref, EntityQuestionBank)
		}
	}
	r.jobPositions[ref.Index].removed = true
	return nil
}

// RemoveQuestionBank tombstones a question bank with no live questions.
func (r *SeedRun) RemoveQuestionBank(ref Ref) error {
	if err := r.checkRemovable(ref, EntityQuestionBank); err != nil {
		return err
	}
	for _, e := range r.questions {
		if !e.removed && e.value.bank == ref {
			return hasDependents(ref, EntityQuestion)
		}
	}
	r.banks[ref.Index].removed = true
	return nil
}

// RemoveQuestion tombstones a question together with its options.
func (r *SeedRun) RemoveQuestion(ref Ref) error {
	if err := r.checkRemovable(ref, EntityQuestion); err != nil {
		return err
	}
	r.questions[ref.Index].removed = true
	for i := range r.options {
		if r.options[i].value.question == ref {
			r.options[i].removed = true
		}
	}
	return nil
}

func (r *SeedRun) checkRemovable(ref Ref, want EntityType) error {
	if ref.Type != want || !r.Live(ref) {
		return &ValidationError{
			Kind:    KindNotFound,
			Entity:  want,
			Message: fmt.Sprintf("%s is not a live %s in this run", ref, want),
		}
	}
	return nil
}

func hasDependents(ref Ref, child EntityType) error {
	return &ValidationError{
		Kind:    KindHasDependents,
		Entity:  ref.Type,
		Message: fmt.Sprintf("%s still has live %s entries; remove them first", ref, child),
	}
}

// Live reports whether ref points at a non-removed entity of this run.
func (r *SeedRun) Live(ref Ref) bool {
	if ref.Index < 0 {
		return false
	}
	switch ref.Type {
	case EntityJobPosition:
		return ref.Index < len(r.jobPositions) && !r.jobPositions[ref.Index].removed
	case EntityQuestionBank:
		return ref.Index < len(r.banks) && !r.banks[ref.Index].removed
	case EntityQuestion:
		return ref.Index < len(r.questions) && !r.questions[ref.Index].removed
	case EntityOption:
		return ref.Index < len(r.options) && !r.options[ref.Index].removed
	}
	return false
}

// Parent returns the ref of the entity that ref's foreign key points at.
func (r *SeedRun) Parent(ref Ref) (Ref, bool) {
	if !r.Live(ref) {
		return Ref{}, false
	}
	switch ref.Type {
	case EntityQuestionBank:
		return r.banks[ref.Index].value.jobPosition, true
	case EntityQuestion:
		return r.questions[ref.Index].value.bank, true
	case EntityOption:
		return r.options[ref.Index].value.question, true
	}
	return Ref{}, false
}

// Refs returns the live refs of type t in insertion order.
func (r *SeedRun) Refs(t EntityType) []Ref {
	var n int
	switch t {
	case EntityJobPosition:
		n = len(r.jobPositions)
	case EntityQuestionBank:
		n = len(r.banks)
	case EntityQuestion:
		n = len(r.questions)
	case EntityOption:
		n = len(r.options)
	}
	refs := make([]Ref, 0, n)
	for i := 0; i < n; i++ {
		ref := Ref{Type: t, Index: i}
		if r.Live(ref) {
			refs = append(refs, ref)
		}
	}
	return refs
}

// Len returns the number of live entities of type t.
func (r *SeedRun) Len(t EntityType) int {
	return len(r.Refs(t))
}

// JobPositions returns live job positions in insertion order.
func (r *SeedRun) JobPositions() []JobPositionEntry {
	var out []JobPositionEntry
	for _, ref := range r.Refs(EntityJobPosition) {
		out = append(out, JobPositionEntry{Ref: ref, JobPosition: r.jobPositions[ref.Index].value})
	}
	return out
}

// QuestionBanks returns live question banks in insertion order.
func (r *SeedRun) QuestionBanks() []QuestionBankEntry {
	var out []QuestionBankEntry
	for _, ref := range r.Refs(EntityQuestionBank) {
		out = append(out, QuestionBankEntry{Ref: ref, QuestionBank: r.banks[ref.Index].value})
	}
	return out
}

// Questions returns live questions in insertion order with their position
// inside their bank.
func (r *SeedRun) Questions() []QuestionEntry {
	positions := make(map[Ref]int)
	var out []QuestionEntry
	for _, ref := range r.Refs(EntityQuestion) {
		q := r.questions[ref.Index].value
		positions[q.bank]++
		out = append(out, QuestionEntry{Ref: ref, Question: q, Position: positions[q.bank]})
	}
	return out
}

// Options returns live options in insertion order with their position inside
// their question.
func (r *SeedRun) Options() []OptionEntry {
	positions := make(map[Ref]int)
	var out []OptionEntry
	for _, ref := range r.Refs(EntityOption) {
		rec := r.options[ref.Index].value
		positions[rec.question]++
		out = append(out, OptionEntry{
			Ref:      ref,
			Question: rec.question,
			Option:   rec.option,
			Position: positions[rec.question],
		})
	}
	return out
}

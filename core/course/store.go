package course

import (
	"context"
	"sync"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/classroom/core"
)

var ErrEnrollmentInFlight = errors.New("an enrollment in this course is already in progress")

var (
	newestCourses     = core.DBOrdering{Field: "created_at"}
	newestEnrollments = core.DBOrdering{Field: "enrolled_at"}
)

type collection int

const (
	colCourses collection = iota
	colEnrollments
	numCollections
)

type (
	// State is a snapshot of the Store.
	State struct {
		Courses     []Course
		Enrollments []Enrollment
		Loading     bool
		Err         string // empty when the last operations succeeded
	}

	// op is one unit of work, holding a ticket for every collection it will replace.
	op struct {
		name    string
		tickets map[collection]uint64
	}

	result struct {
		courses     []Course
		enrollments []Enrollment
	}

	enrollKey struct {
		studentID string
		courseID  string
	}

	// Store holds the courses and enrollments views of the current actor.
	//
	// Every mutation is followed by a re-fetch (write-then-read-back); nothing is synthesized locally.
	// A response is only applied to a collection if no newer operation targeting that collection has
	// been issued since, so overlapping fetches cannot leave stale data behind. Arguments are
	// validated before an operation is issued: a rejected call supersedes nothing.
	// On failure the previous views are kept and Err describes the failure.
	Store struct {
		gw         core.Gateway
		validate   *validator.Validate
		translator ut.Translator
		logger     core.Logger

		mu          sync.RWMutex
		courses     []Course
		enrollments []Enrollment
		inFlight    int
		errMsg      string
		issued      [numCollections]uint64
		enrolling   map[enrollKey]struct{}
	}
)

func NewStore(gw core.Gateway, validate *validator.Validate, translator ut.Translator, logger core.Logger) *Store {
	if logger == nil {
		logger = core.NopLogger{}
	}
	return &Store{
		gw:          gw,
		validate:    validate,
		translator:  translator,
		logger:      logger,
		courses:     make([]Course, 0),
		enrollments: make([]Enrollment, 0),
		enrolling:   make(map[enrollKey]struct{}),
	}
}

func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	crs := make([]Course, len(s.courses))
	copy(crs, s.courses)
	enrs := make([]Enrollment, len(s.enrollments))
	copy(enrs, s.enrollments)
	return State{
		Courses:     crs,
		Enrollments: enrs,
		Loading:     s.inFlight > 0,
		Err:         s.errMsg,
	}
}

// IsEnrolled reports whether the enrollments view holds a non-dropped enrollment in the course.
func (s *Store) IsEnrolled(courseID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, enr := range s.enrollments {
		if enr.CourseID == courseID && enr.Status != StatusDropped {
			return true
		}
	}
	return false
}

// FetchTeacherCourses replaces the courses view with the courses owned by teacherID, newest first.
func (s *Store) FetchTeacherCourses(ctx context.Context, teacherID string) error {
	const name = "fetching teacher courses"
	if err := vala.BeginValidation().Validate(vala.StringNotEmpty(teacherID, "teacherID")).Check(); err != nil {
		return s.reject(name, err)
	}

	o := s.begin(name, colCourses)
	courses, err := s.queryCourses(ctx, core.Filter{"teacher_id": teacherID})
	if err != nil {
		return s.fail(o, err)
	}
	s.finish(o, result{courses: courses})
	return nil
}

// FetchAllCourses replaces the courses view with the whole catalog, newest first.
func (s *Store) FetchAllCourses(ctx context.Context) error {
	o := s.begin("fetching courses", colCourses)
	courses, err := s.queryCourses(ctx, nil)
	if err != nil {
		return s.fail(o, err)
	}
	s.finish(o, result{courses: courses})
	return nil
}

// FetchStudentEnrollments replaces the courses view with the whole catalog and the enrollments view
// with the enrollments of studentID, newest first, each joined with its course.
func (s *Store) FetchStudentEnrollments(ctx context.Context, studentID string) error {
	const name = "fetching student enrollments"
	if err := vala.BeginValidation().Validate(vala.StringNotEmpty(studentID, "studentID")).Check(); err != nil {
		return s.reject(name, err)
	}

	o := s.begin(name, colCourses, colEnrollments)
	courses, enrollments, err := s.queryEnrollments(ctx, studentID)
	if err != nil {
		return s.fail(o, err)
	}
	s.finish(o, result{courses: courses, enrollments: enrollments})
	return nil
}

// CreateCourse inserts a new Course, then re-fetches the courses of its teacher.
func (s *Store) CreateCourse(ctx context.Context, d Draft) error {
	const name = "creating course"
	if err := d.Validate(s.validate); err != nil {
		return s.reject(name, err)
	}

	o := s.begin(name, colCourses)
	if _, err := s.gw.Insert(ctx, core.RelationCourses, d.record()); err != nil {
		return s.fail(o, errors.Wrap(err, "inserting course"))
	}

	courses, err := s.queryCourses(ctx, core.Filter{"teacher_id": d.TeacherID})
	if err != nil {
		return s.fail(o, err)
	}
	s.finish(o, result{courses: courses})
	return nil
}

// EnrollInCourse inserts an active Enrollment, then re-fetches the enrollments of the student.
// Existing enrollments are not checked. A second call for the same student and course while the
// first one is still running fails with ErrEnrollmentInFlight.
func (s *Store) EnrollInCourse(ctx context.Context, studentID, courseID string) error {
	const name = "enrolling in course"
	if err := vala.BeginValidation().Validate(
		vala.StringNotEmpty(studentID, "studentID"),
		vala.StringNotEmpty(courseID, "courseID"),
	).Check(); err != nil {
		return s.reject(name, err)
	}

	key := enrollKey{studentID: studentID, courseID: courseID}
	if !s.acquireEnroll(key) {
		return s.reject(name, ErrEnrollmentInFlight)
	}
	defer s.releaseEnroll(key)

	o := s.begin(name, colEnrollments)
	rec := core.Record{
		"student_id": studentID,
		"course_id":  courseID,
		"status":     string(StatusActive),
		"progress":   0,
	}
	if _, err := s.gw.Insert(ctx, core.RelationEnrollments, rec); err != nil {
		return s.fail(o, errors.Wrap(err, "inserting enrollment"))
	}

	_, enrollments, err := s.queryEnrollments(ctx, studentID)
	if err != nil {
		return s.fail(o, err)
	}
	s.finish(o, result{enrollments: enrollments})
	return nil
}

// UpdateProgress sets the progress (0-100) of one of the student's enrollments, then re-fetches them.
func (s *Store) UpdateProgress(ctx context.Context, studentID, enrollmentID string, progress int) error {
	const name = "updating enrollment progress"
	if err := vala.BeginValidation().Validate(
		vala.StringNotEmpty(studentID, "studentID"),
		vala.StringNotEmpty(enrollmentID, "enrollmentID"),
	).Check(); err != nil {
		return s.reject(name, err)
	}
	if err := s.validate.Struct(progressUpdate{Progress: progress}); err != nil {
		return s.reject(name, err)
	}

	o := s.begin(name, colEnrollments)
	filter := core.Filter{"id": enrollmentID, "student_id": studentID}
	if _, err := s.gw.Update(ctx, core.RelationEnrollments, filter, core.Record{"progress": progress}); err != nil {
		return s.fail(o, errors.Wrap(err, "updating enrollment"))
	}

	_, enrollments, err := s.queryEnrollments(ctx, studentID)
	if err != nil {
		return s.fail(o, err)
	}
	s.finish(o, result{enrollments: enrollments})
	return nil
}

func (s *Store) queryCourses(ctx context.Context, filter core.Filter) ([]Course, error) {
	recs, err := s.gw.Query(ctx, core.RelationCourses, filter, newestCourses)
	if err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	courses := make([]Course, 0, len(recs))
	for _, rec := range recs {
		courses = append(courses, courseFromRecord(rec))
	}
	return courses, nil
}

// queryEnrollments returns the whole catalog and the student's enrollments joined with it.
func (s *Store) queryEnrollments(ctx context.Context, studentID string) ([]Course, []Enrollment, error) {
	courses, err := s.queryCourses(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	recs, err := s.gw.Query(ctx, core.RelationEnrollments, core.Filter{"student_id": studentID}, newestEnrollments)
	if err != nil {
		return nil, nil, errors.Wrap(err, "querying enrollments")
	}

	catalog := make(map[string]Course, len(courses))
	for _, crs := range courses {
		catalog[crs.ID] = crs
	}
	enrollments := make([]Enrollment, 0, len(recs))
	for _, rec := range recs {
		enr := enrollmentFromRecord(rec)
		enr.Course = catalog[enr.CourseID]
		enrollments = append(enrollments, enr)
	}
	return courses, enrollments, nil
}

func (s *Store) begin(name string, cols ...collection) *op {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := &op{name: name, tickets: make(map[collection]uint64, len(cols))}
	for _, col := range cols {
		s.issued[col]++
		o.tickets[col] = s.issued[col]
	}
	s.inFlight++
	s.errMsg = ""
	return o
}

// latest reports whether o still holds the latest ticket of at least one collection.
// Must be called with s.mu held.
func (s *Store) latest(o *op) bool {
	for col, t := range o.tickets {
		if s.issued[col] == t {
			return true
		}
	}
	return false
}

func (s *Store) finish(o *op, res result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight--
	if t, ok := o.tickets[colCourses]; ok && s.issued[colCourses] == t {
		s.courses = res.courses
	}
	if t, ok := o.tickets[colEnrollments]; ok && s.issued[colEnrollments] == t {
		s.enrollments = res.enrollments
	}
}

// fail records err unless o has been superseded, keeping the current views, and returns err.
func (s *Store) fail(o *op, err error) error {
	s.logger.Error("Error "+o.name, err)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight--
	if s.latest(o) {
		s.errMsg = core.ErrorMessage(err, s.translator)
	}
	return err
}

// reject records err for an operation that never reached the Gateway.
// It holds no ticket, so in-flight operations still apply their responses.
func (s *Store) reject(name string, err error) error {
	s.logger.Error("Error "+name, err)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.errMsg = core.ErrorMessage(err, s.translator)
	return err
}

func (s *Store) acquireEnroll(key enrollKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.enrolling[key]; ok {
		return false
	}
	s.enrolling[key] = struct{}{}
	return true
}

func (s *Store) releaseEnroll(key enrollKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.enrolling, key)
}

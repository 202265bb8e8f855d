package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/classroom/core"
	"github.com/trezcool/classroom/core/course"
	"github.com/trezcool/classroom/core/session"
	inmemdb "github.com/trezcool/classroom/storage/database/inmem"
)

const testPwd = "correct-horse-42"

type cliTest struct {
	name       string
	args       []string // without program name
	pwd        string
	wantErr    error
	wantErrStr string
	wantOut    string
}

// newCLI returns a portal process connected to db, with an empty session.
func newCLI(db *inmemdb.DB) (*commandLine, *bytes.Buffer) {
	inmemdb.PasswordCost = bcrypt.MinCost

	translator := core.NewTranslator()
	validate := core.NewValidator(translator)
	session.InitValidators(validate, translator)
	course.InitValidators(validate, translator)

	gw := inmemdb.NewGateway(db)
	out := new(bytes.Buffer)
	return &commandLine{
		sess:  session.NewManager(gw, validate, nil, nil),
		store: course.NewStore(gw, validate, translator, nil),
		out:   out,
	}, out
}

func runTests(t *testing.T, cli *commandLine, out *bytes.Buffer, tests []cliTest) {
	t.Helper()
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			readPasswordFunc = func(fd int) ([]byte, error) {
				return []byte(tt.pwd), nil
			}
			out.Reset()

			err := cli.run(context.Background(), append([]string{"portal"}, tt.args...))
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
				}
			case tt.wantErrStr != "":
				if err == nil || !strings.Contains(err.Error(), tt.wantErrStr) {
					t.Errorf("cli.run() error = %v, wantErrStr %s", err, tt.wantErrStr)
				}
			case err != nil:
				t.Errorf("cli.run() unexpected error = %v", err)
			}
			if tt.wantOut != "" && !strings.Contains(out.String(), tt.wantOut) {
				t.Errorf("cli.run() output = %q, want it to contain %q", out.String(), tt.wantOut)
			}
		})
	}
}

func Test_commandLine_usage(t *testing.T) {
	cli, out := newCLI(inmemdb.Open())
	runTests(t, cli, out, []cliTest{
		{name: "no command", wantErr: errHelp, wantOut: "Usage:"},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "signup: no args", args: []string{"signup"}, wantErr: errHelp},
		{name: "signup: no role", args: []string{"signup", "-email", "alice@x.com"}, wantErr: errHelp},
		{name: "signup: no password", args: []string{"signup", "-email", "alice@x.com", "-role", "teacher"}, wantErr: errHelp},
		{name: "signup: bad flag", args: []string{"signup", "-lol"}, wantErrStr: "flag provided but not defined"},
		{name: "whoami: signed out", args: []string{"whoami"}, wantErr: errNotSignedIn},
		{name: "courses: signed out", args: []string{"courses"}, wantErr: errNotSignedIn},
		{name: "enrollments: signed out", args: []string{"enrollments"}, wantErr: errNotSignedIn},
		{name: "create-course: no title", args: []string{"create-course"}, wantErr: errHelp},
		{name: "enroll: no course", args: []string{"enroll"}, wantErr: errHelp},
		{name: "progress: no value", args: []string{"progress", "-enrollment", "e1"}, wantErr: errHelp},
		{name: "progress: non-int value", args: []string{"progress", "-enrollment", "e1", "-value", "lol"}, wantErrStr: "progress must be a number (got 'lol')"},
	})
}

func Test_commandLine_migrate(t *testing.T) {
	cli, out := newCLI(inmemdb.Open())
	runTests(t, cli, out, []cliTest{
		{name: "no database", args: []string{"migrate", "up"}, wantErr: errNoDatabase},
	})

	var got []string
	cli.migrate = func(_ context.Context, command string, args ...string) error {
		got = append([]string{command}, args...)
		if command == "lol" {
			return errors.New(`"lol": no such command`)
		}
		return nil
	}
	runTests(t, cli, out, []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: `"lol": no such command`},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
	})
	if strings.Join(got, " ") != "up-to 2" {
		t.Errorf("migrate called with %v, want [up-to 2]", got)
	}
}

func Test_commandLine_teacherAndStudent(t *testing.T) {
	db := inmemdb.Open()

	teacher, out := newCLI(db)
	runTests(t, teacher, out, []cliTest{
		{name: "signup: weak password", args: []string{"signup", "-email", "bob@x.com", "-role", "teacher"}, pwd: "12345678", wantErrStr: "pwdnotallnum"},
		{name: "signup", args: []string{"signup", "-email", "Bob@X.com", "-role", "teacher"}, pwd: testPwd, wantOut: "signed in as bob@x.com (teacher)"},
		{name: "whoami", args: []string{"whoami"}, wantOut: "bob@x.com\tteacher"},
		{name: "create-course: bad date", args: []string{"create-course", "-title", "Go", "-start", "01/02/2026"}, wantErrStr: "date must be of form YYYY-MM-DD"},
		{name: "create-course: ends before start", args: []string{"create-course", "-title", "Go", "-start", "2026-02-01", "-end", "2026-01-01"}, wantErrStr: "enddate"},
		{name: "create-course", args: []string{"create-course", "-title", "Go 101", "-start", "2026-02-01"}, wantOut: "Go 101"},
		{name: "courses", args: []string{"courses"}, wantOut: "2026-02-01"},
		{name: "enroll: not a student", args: []string{"enroll", "-course", "c1"}, wantErr: errStudentsOnly},
	})
	courses := teacher.store.State().Courses
	if len(courses) != 1 {
		t.Fatalf("teacher courses = %v, want 1 course", courses)
	}
	courseID := courses[0].ID

	student, out := newCLI(db)
	runTests(t, student, out, []cliTest{
		{name: "signin: teacher account on student portal", args: []string{"signin", "-email", "bob@x.com", "-role", "student"}, pwd: testPwd, wantErrStr: "role mismatch"},
		{name: "whoami: after role mismatch", args: []string{"whoami"}, wantErr: errNotSignedIn},
		{name: "signup", args: []string{"signup", "-email", "alice@x.com", "-role", "student"}, pwd: testPwd, wantOut: "signed in as alice@x.com (student)"},
		{name: "create-course: not a teacher", args: []string{"create-course", "-title", "Rust"}, wantErr: errTeachersOnly},
		{name: "courses: catalog", args: []string{"courses"}, wantOut: "Go 101"},
		{name: "enroll", args: []string{"enroll", "-course", courseID}, wantOut: "Go 101"},
		{name: "enroll: already enrolled", args: []string{"enroll", "-course", courseID}, wantErr: errEnrolled},
		{name: "enrollments", args: []string{"enrollments"}, wantOut: "active"},
	})
	enrollments := student.store.State().Enrollments
	if len(enrollments) != 1 {
		t.Fatalf("student enrollments = %v, want 1 enrollment", enrollments)
	}
	recs, err := inmemdb.NewGateway(db).Query(context.Background(), core.RelationEnrollments, core.Filter{"course_id": courseID})
	if err != nil || len(recs) != 1 {
		t.Fatalf("stored enrollments = %d (err %v), want 1", len(recs), err)
	}
	enrollmentID := enrollments[0].ID

	runTests(t, student, out, []cliTest{
		{name: "progress: out of range", args: []string{"progress", "-enrollment", enrollmentID, "-value", "101"}, wantErrStr: "progress"},
		{name: "progress", args: []string{"progress", "-enrollment", enrollmentID, "-value", "50"}, wantOut: "50%"},
		{name: "signout", args: []string{"signout"}},
		{name: "whoami: signed out", args: []string{"whoami"}, wantErr: errNotSignedIn},
	})
}

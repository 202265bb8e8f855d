package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/volatiletech/null/v8"
	"golang.org/x/term"

	"github.com/trezcool/classroom/core/course"
	"github.com/trezcool/classroom/core/session"
)

const dateLayout = "2006-01-02"

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp         = errors.New("help provided")
	errNotSignedIn  = errors.New("not signed in")
	errNoDatabase   = errors.New("migrations need a postgres database")
	errTeachersOnly = errors.New("this command needs a teacher session")
	errStudentsOnly = errors.New("this command needs a student session")
	errEnrolled     = errors.New("already enrolled in this course")
)

type migrateFunc func(ctx context.Context, command string, args ...string) error

type commandLine struct {
	sess    *session.Manager
	store   *course.Store
	migrate migrateFunc // nil without a database
	out     io.Writer
}

func (cli *commandLine) printUsage() {
	_, _ = fmt.Fprint(cli.out, `Usage:
  signup -email EMAIL -role teacher|student   - create an account, the password is prompted
  signin -email EMAIL -role teacher|student   - sign in, the password is prompted
  signout                                     - end the session
  whoami                                      - show the signed in user
  courses [-all]                              - list your courses (teachers) or the catalog
  create-course -title TITLE [-description D] [-start YYYY-MM-DD] [-end YYYY-MM-DD]
  enroll -course COURSE_ID                    - enroll in a course you are not enrolled in (students)
  enrollments                                 - list your enrollments (students)
  progress -enrollment ID -value 0-100        - update your progress (students)
  migrate COMMAND [ARGS...]                   - run a database migration command
`)
}

func (cli *commandLine) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	if args[1] == "migrate" {
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		if cli.migrate == nil {
			return errNoDatabase
		}
		return cli.migrate(ctx, args[2], args[3:]...)
	}

	// restore the previous session
	if _, _, err := cli.sess.CheckUser(ctx); err != nil {
		return err
	}

	switch args[1] {
	case "signup", "signin":
		return cli.authenticate(ctx, args[1], args[2:])
	case "signout":
		return cli.sess.SignOut(ctx)
	case "whoami":
		return cli.whoAmI()
	case "courses":
		return cli.listCourses(ctx, args[2:])
	case "create-course":
		return cli.createCourse(ctx, args[2:])
	case "enroll":
		return cli.enroll(ctx, args[2:])
	case "enrollments":
		return cli.listEnrollments(ctx)
	case "progress":
		return cli.updateProgress(ctx, args[2:])
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) authenticate(ctx context.Context, name string, args []string) error {
	cmd := cli.newFlagSet(name)
	email := cmd.String("email", "", "The account email. The password will be prompted next.")
	roleStr := cmd.String("role", "", "The portal: teacher or student.")
	if err := cmd.Parse(args); err != nil {
		return err
	}
	if *email == "" || *roleStr == "" {
		cmd.Usage()
		return errHelp
	}

	_, _ = fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(os.Stdin.Fd()))
	_, _ = fmt.Fprintln(cli.out)
	if err != nil {
		return err
	}
	if len(pwd) == 0 {
		cmd.Usage()
		return errHelp
	}

	var usr session.User
	role := session.Role(*roleStr)
	if name == "signup" {
		usr, err = cli.sess.SignUp(ctx, *email, string(pwd), role)
	} else {
		usr, err = cli.sess.SignIn(ctx, *email, string(pwd), role)
	}
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cli.out, "signed in as %s (%s)\n", usr.Email, usr.Role)
	return nil
}

func (cli *commandLine) whoAmI() error {
	usr, ok := cli.sess.User()
	if !ok {
		return errNotSignedIn
	}
	_, _ = fmt.Fprintf(cli.out, "%s\t%s\t%s\n", usr.ID, usr.Email, usr.Role)
	return nil
}

func (cli *commandLine) requireUser(role session.Role) (session.User, error) {
	usr, ok := cli.sess.User()
	if !ok {
		return session.User{}, errNotSignedIn
	}
	if role != "" && usr.Role != role {
		if role == session.RoleTeacher {
			return session.User{}, errTeachersOnly
		}
		return session.User{}, errStudentsOnly
	}
	return usr, nil
}

func (cli *commandLine) listCourses(ctx context.Context, args []string) error {
	cmd := cli.newFlagSet("courses")
	all := cmd.Bool("all", false, "List the whole catalog, even for teachers.")
	if err := cmd.Parse(args); err != nil {
		return err
	}
	usr, err := cli.requireUser("")
	if err != nil {
		return err
	}

	if usr.IsTeacher() && !*all {
		err = cli.store.FetchTeacherCourses(ctx, usr.ID)
	} else {
		err = cli.store.FetchAllCourses(ctx)
	}
	if err != nil {
		return err
	}
	cli.printCourses(cli.store.State().Courses)
	return nil
}

func (cli *commandLine) createCourse(ctx context.Context, args []string) error {
	cmd := cli.newFlagSet("create-course")
	title := cmd.String("title", "", "The course title.")
	description := cmd.String("description", "", "The course description.")
	start := cmd.String("start", "", "The start date (YYYY-MM-DD).")
	end := cmd.String("end", "", "The end date (YYYY-MM-DD).")
	if err := cmd.Parse(args); err != nil {
		return err
	}
	if *title == "" {
		cmd.Usage()
		return errHelp
	}
	usr, err := cli.requireUser(session.RoleTeacher)
	if err != nil {
		return err
	}

	d := course.Draft{Title: *title, Description: *description, TeacherID: usr.ID}
	if d.StartDate, err = parseDate(*start); err != nil {
		return err
	}
	if d.EndDate, err = parseDate(*end); err != nil {
		return err
	}
	if err = cli.store.CreateCourse(ctx, d); err != nil {
		return err
	}
	cli.printCourses(cli.store.State().Courses)
	return nil
}

func (cli *commandLine) enroll(ctx context.Context, args []string) error {
	cmd := cli.newFlagSet("enroll")
	courseID := cmd.String("course", "", "The id of the course.")
	if err := cmd.Parse(args); err != nil {
		return err
	}
	if *courseID == "" {
		cmd.Usage()
		return errHelp
	}
	usr, err := cli.requireUser(session.RoleStudent)
	if err != nil {
		return err
	}

	if err = cli.store.FetchStudentEnrollments(ctx, usr.ID); err != nil {
		return err
	}
	if cli.store.IsEnrolled(*courseID) {
		return errEnrolled
	}
	if err = cli.store.EnrollInCourse(ctx, usr.ID, *courseID); err != nil {
		return err
	}
	cli.printEnrollments(cli.store.State().Enrollments)
	return nil
}

func (cli *commandLine) listEnrollments(ctx context.Context) error {
	usr, err := cli.requireUser(session.RoleStudent)
	if err != nil {
		return err
	}
	if err = cli.store.FetchStudentEnrollments(ctx, usr.ID); err != nil {
		return err
	}
	cli.printEnrollments(cli.store.State().Enrollments)
	return nil
}

func (cli *commandLine) updateProgress(ctx context.Context, args []string) error {
	cmd := cli.newFlagSet("progress")
	enrollmentID := cmd.String("enrollment", "", "The id of the enrollment.")
	value := cmd.String("value", "", "The progress, from 0 to 100.")
	if err := cmd.Parse(args); err != nil {
		return err
	}
	if *enrollmentID == "" || *value == "" {
		cmd.Usage()
		return errHelp
	}
	progress, err := strconv.Atoi(*value)
	if err != nil {
		return fmt.Errorf("progress must be a number (got '%s')", *value)
	}
	usr, err := cli.requireUser(session.RoleStudent)
	if err != nil {
		return err
	}

	if err = cli.store.UpdateProgress(ctx, usr.ID, *enrollmentID, progress); err != nil {
		return err
	}
	cli.printEnrollments(cli.store.State().Enrollments)
	return nil
}

func (cli *commandLine) printCourses(courses []course.Course) {
	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTITLE\tSTART\tEND\tCREATED")
	for _, crs := range courses {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			crs.ID, crs.Title, formatDate(crs.StartDate), formatDate(crs.EndDate), crs.CreatedAt.Format(time.RFC3339))
	}
	_ = w.Flush()
}

func (cli *commandLine) printEnrollments(enrollments []course.Enrollment) {
	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tCOURSE\tSTATUS\tPROGRESS\tENROLLED")
	for _, enr := range enrollments {
		title := enr.Course.Title
		if title == "" {
			title = enr.CourseID
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%s\n",
			enr.ID, title, enr.Status, enr.Progress, enr.EnrolledAt.Format(time.RFC3339))
	}
	_ = w.Flush()
}

func parseDate(s string) (null.Time, error) {
	if s == "" {
		return null.Time{}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return null.Time{}, fmt.Errorf("date must be of form YYYY-MM-DD (got '%s')", s)
	}
	return null.TimeFrom(t), nil
}

func formatDate(t null.Time) string {
	if !t.Valid {
		return "-"
	}
	return t.Time.Format(dateLayout)
}

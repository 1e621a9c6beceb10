package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/vibast-solutions/ms-go-filedrop/app/entity"
	"github.com/vibast-solutions/ms-go-filedrop/app/mailer"
	"github.com/vibast-solutions/ms-go-filedrop/app/repository"
	"github.com/vibast-solutions/ms-go-filedrop/app/service"
	"github.com/vibast-solutions/ms-go-filedrop/app/types"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user account without sending a verification email",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		accounts, closeDB, err := newAccountServiceForUserCommands(cmd.Context())
		if err != nil {
			return err
		}
		defer closeDB()

		username, _ := cmd.Flags().GetString("username")
		email, _ := cmd.Flags().GetString("email")
		staff, _ := cmd.Flags().GetBool("staff")
		verified, _ := cmd.Flags().GetBool("verified")

		password, err := promptPassword(cmd.OutOrStdout(), os.Stdin)
		if err != nil {
			return err
		}

		user, err := accounts.CreateUser(cmd.Context(), service.CreateUserInput{
			Username: username,
			Email:    email,
			Password: password,
			Staff:    staff,
			Verified: verified,
		})
		if err != nil {
			if verr, ok := types.AsValidationError(err); ok {
				return formatValidationError(verr)
			}
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "created user %d: %s <%s>\n", user.ID, user.Username, user.Email)
		return nil
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List user accounts ordered by email",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		accounts, closeDB, err := newAccountServiceForUserCommands(cmd.Context())
		if err != nil {
			return err
		}
		defer closeDB()

		query, _ := cmd.Flags().GetString("q")
		users, err := accounts.ListUsers(cmd.Context(), query)
		if err != nil {
			return err
		}
		return printUsers(cmd.OutOrStdout(), users)
	},
}

var userVerifyCmd = &cobra.Command{
	Use:   "verify <email>",
	Short: "Mark a user's email address as verified",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		accounts, closeDB, err := newAccountServiceForUserCommands(cmd.Context())
		if err != nil {
			return err
		}
		defer closeDB()

		user, err := accounts.VerifyUserByEmail(cmd.Context(), args[0])
		if err != nil {
			if errors.Is(err, service.ErrNotFound) {
				return fmt.Errorf("no user with email %q", args[0])
			}
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "verified %s\n", user.Email)
		return nil
	},
}

func init() {
	userCreateCmd.Flags().String("username", "", "username (letters, digits and @.+-_)")
	userCreateCmd.Flags().String("email", "", "email address used to log in")
	userCreateCmd.Flags().Bool("staff", false, "grant staff status")
	userCreateCmd.Flags().Bool("verified", false, "mark the email address as already verified")
	_ = userCreateCmd.MarkFlagRequired("username")
	_ = userCreateCmd.MarkFlagRequired("email")

	userListCmd.Flags().String("q", "", "filter by email or username")

	userCmd.AddCommand(userCreateCmd)
	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userVerifyCmd)
	rootCmd.AddCommand(userCmd)
}

func newAccountServiceForUserCommands(ctx context.Context) (service.AccountService, func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, db, err := openDatabase(ctx)
	if err != nil {
		return nil, nil, err
	}

	accounts := service.NewAccountService(
		repository.NewUserRepository(db),
		repository.NewSessionRepository(db),
		mailer.NewLogMailer(),
		cfg,
	)
	return accounts, func() { db.Close() }, nil
}

// promptPassword reads the password twice without echo when stdin is a
// terminal, and one line per answer otherwise.
func promptPassword(out io.Writer, in *os.File) (string, error) {
	readLine := lineReader(in)

	fmt.Fprint(out, "Password: ")
	password, err := readLine()
	if err != nil {
		return "", err
	}
	fmt.Fprint(out, "Password (again): ")
	again, err := readLine()
	if err != nil {
		return "", err
	}

	if password == "" {
		return "", errors.New("password must not be empty")
	}
	if password != again {
		return "", errors.New("the two password fields didn't match")
	}
	return password, nil
}

func lineReader(in *os.File) func() (string, error) {
	fd := int(in.Fd())
	if term.IsTerminal(fd) {
		return func() (string, error) {
			b, err := term.ReadPassword(fd)
			fmt.Println()
			return string(b), err
		}
	}

	reader := bufio.NewReader(in)
	return func() (string, error) {
		line, err := reader.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
}

func printUsers(w io.Writer, users []*entity.User) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EMAIL\tUSERNAME\tACTIVE\tVERIFIED\tSTAFF\tJOINED")
	for _, u := range users {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%t\t%t\t%s\n",
			u.Email,
			u.Username,
			u.IsActive,
			u.EmailVerified,
			u.IsStaff,
			u.CreatedAt.UTC().Format("2006-01-02 15:04"),
		)
	}
	return tw.Flush()
}

func formatValidationError(verr *types.ValidationError) error {
	lines := make([]string, 0, len(verr.Fields))
	for _, field := range []string{"username", "email", "password1", "password2", types.NonFieldKey} {
		for _, msg := range verr.Get(field) {
			lines = append(lines, fmt.Sprintf("%s: %s", strings.TrimSuffix(field, "1"), msg))
		}
	}
	if len(lines) == 0 {
		return verr
	}
	return errors.New(strings.Join(lines, "\n"))
}

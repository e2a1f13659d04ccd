package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/whobought/internal/calculator"
	"github.com/mmynk/whobought/internal/models"
)

const shellHelp = `Commands:
    groups                                   List your groups (* marks the active one)
    select <group_id>                        Make a group active
    add <amount> <payer> <a,b,...> <desc>    Add an expense split equally
    rm <expense_id>                          Remove an expense
    clear                                    Remove every expense locally
    list                                     Show the active group's expenses
    settle                                   Show balances and who pays whom
    logout                                   Forget the session
    help                                     Show this help
    quit                                     Exit`

// session is the part of the store the shell drives.
type session interface {
	ActiveUser() *models.User
	ActiveGroup() *models.Group
	Balances() []calculator.MemberBalance
	Settlements() []models.Settlement
	SelectGroup(ctx context.Context, groupID string) error
	AddExpense(draft models.ExpenseDraft) (models.Expense, error)
	RemoveExpense(id string) error
	ClearExpenses() error
	Logout()
}

var errQuit = errors.New("quit")

type shell struct {
	session session
	out     io.Writer
	now     func() time.Time
}

// run reads commands until EOF, quit or ctx is done.
func (sh *shell) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(sh.out, "> ")
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		if err := sh.exec(ctx, scanner.Text()); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			fmt.Fprintf(sh.out, "error: %v\n", err)
		}
		fmt.Fprint(sh.out, "> ")
	}
	return scanner.Err()
}

func (sh *shell) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "groups":
		return sh.groups()
	case "select":
		if len(args) != 1 {
			return fmt.Errorf("usage: select <group_id>")
		}
		if err := sh.session.SelectGroup(ctx, args[0]); err != nil {
			return err
		}
		return sh.list()
	case "add":
		return sh.add(args)
	case "rm":
		if len(args) != 1 {
			return fmt.Errorf("usage: rm <expense_id>")
		}
		return sh.session.RemoveExpense(args[0])
	case "clear":
		return sh.session.ClearExpenses()
	case "list":
		return sh.list()
	case "settle":
		return sh.settle()
	case "logout":
		sh.session.Logout()
		fmt.Fprintln(sh.out, "logged out")
		return nil
	case "help":
		fmt.Fprintln(sh.out, shellHelp)
		return nil
	case "quit", "exit":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
}

func (sh *shell) groups() error {
	user := sh.session.ActiveUser()
	if user == nil {
		return fmt.Errorf("not signed in")
	}
	active := ""
	if g := sh.session.ActiveGroup(); g != nil {
		active = g.ID
	}
	for _, id := range user.GroupIDs {
		marker := " "
		if id == active {
			marker = "*"
		}
		fmt.Fprintf(sh.out, "%s %s\n", marker, id)
	}
	return nil
}

func (sh *shell) add(args []string) error {
	if len(args) < 4 {
		return fmt.Errorf("usage: add <amount> <payer> <a,b,...> <description>")
	}
	amount, err := decimal.NewFromString(args[0])
	if err != nil {
		return fmt.Errorf("invalid amount %q", args[0])
	}
	expense, err := sh.session.AddExpense(models.ExpenseDraft{
		Description:  strings.Join(args[3:], " "),
		Amount:       amount,
		PaidBy:       args[1],
		SplitBetween: strings.Split(args[2], ","),
		Date:         sh.now().UTC(),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "added %s (%s)\n", expense.ID, expense.Status)
	return nil
}

func (sh *shell) list() error {
	group := sh.session.ActiveGroup()
	if group == nil {
		return fmt.Errorf("no active group")
	}
	fmt.Fprintf(sh.out, "%s (%s)\n", group.Name, group.ID)
	if len(group.Expenses) == 0 {
		fmt.Fprintln(sh.out, "  no expenses")
	}
	for _, e := range group.Expenses {
		status := ""
		if e.Pending() {
			status = " [pending]"
		}
		fmt.Fprintf(sh.out, "  %s  %s  %s paid by %s for %s%s\n",
			e.ID, e.Description, e.Amount.StringFixed(2), e.PaidBy,
			strings.Join(e.SplitBetween, ","), status)
	}
	return nil
}

func (sh *shell) settle() error {
	if sh.session.ActiveGroup() == nil {
		return fmt.Errorf("no active group")
	}
	for _, b := range sh.session.Balances() {
		fmt.Fprintf(sh.out, "  %-30s paid %10s  owes %10s  net %10s\n",
			b.Member, b.TotalPaid.StringFixed(2), b.TotalOwed.StringFixed(2), b.NetBalance.StringFixed(2))
	}
	settlements := sh.session.Settlements()
	if len(settlements) == 0 {
		fmt.Fprintln(sh.out, "all settled")
	}
	for _, s := range settlements {
		fmt.Fprintf(sh.out, "%s -> %s: %s\n", s.From, s.To, s.Amount.StringFixed(2))
	}
	return nil
}

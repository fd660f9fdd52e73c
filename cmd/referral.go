package cmd

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vibast-solutions/ms-go-referral/app/events"
	"github.com/vibast-solutions/ms-go-referral/app/repository"
	"github.com/vibast-solutions/ms-go-referral/app/service"
	"github.com/vibast-solutions/ms-go-referral/app/types"
	"github.com/vibast-solutions/ms-go-referral/config"
)

var referralCmd = &cobra.Command{
	Use:   "referral",
	Short: "Inspect and manage users' referral codes",
}

var referralShowCmd = &cobra.Command{
	Use:   "show <email>",
	Short: "Show the referral code owned by a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := newReferralCommandEnv()
		if err != nil {
			return err
		}
		defer env.Close()

		code, err := env.referralService.GetByEmail(context.Background(), args[0])
		if err != nil {
			if errors.Is(err, service.ErrReferralCodeNotFound) {
				return fmt.Errorf("no referral code found for %q", args[0])
			}
			return err
		}

		printReferralCode(cmd.OutOrStdout(), code)
		return nil
	},
}

var referralExtendCmd = &cobra.Command{
	Use:   "extend <email> <days>",
	Short: "Push a referral code's expiry forward by whole days",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		days, err := strconv.Atoi(args[1])
		if err != nil || days <= 0 {
			return errors.New("days must be a positive integer")
		}

		env, err := newReferralCommandEnv()
		if err != nil {
			return err
		}
		defer env.Close()

		userID, err := env.resolveUserID(args[0])
		if err != nil {
			return err
		}

		code, err := env.referralService.Extend(context.Background(), userID, days)
		if err != nil {
			if errors.Is(err, service.ErrReferralCodeNotFound) {
				return fmt.Errorf("no referral code found for %q", args[0])
			}
			return err
		}

		printReferralCode(cmd.OutOrStdout(), code)
		return nil
	},
}

var referralDeactivateCmd = &cobra.Command{
	Use:   "deactivate <email>",
	Short: "Expire a user's referral code immediately",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		skipPrompt, _ := cmd.Flags().GetBool("yes")
		if !skipPrompt && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), fmt.Sprintf("Deactivate the referral code of %s?", args[0])) {
			return errors.New("aborted")
		}

		env, err := newReferralCommandEnv()
		if err != nil {
			return err
		}
		defer env.Close()

		userID, err := env.resolveUserID(args[0])
		if err != nil {
			return err
		}

		code, err := env.referralService.Deactivate(context.Background(), userID)
		if err != nil {
			if errors.Is(err, service.ErrReferralCodeNotFound) {
				return fmt.Errorf("no referral code found for %q", args[0])
			}
			return err
		}

		printReferralCode(cmd.OutOrStdout(), code)
		return nil
	},
}

func init() {
	referralDeactivateCmd.Flags().BoolP("yes", "y", false, "skip the confirmation prompt")

	referralCmd.AddCommand(referralShowCmd)
	referralCmd.AddCommand(referralExtendCmd)
	referralCmd.AddCommand(referralDeactivateCmd)
	rootCmd.AddCommand(referralCmd)
}

type referralCommandEnv struct {
	db              *sql.DB
	userRepo        *repository.UserRepository
	referralService service.ReferralCodeService
	publisher       events.Publisher
	closeCache      func()
}

func newReferralCommandEnv() (*referralCommandEnv, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err = configureLogging(cfg); err != nil {
		return nil, err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}

	referralCache, closeCache, err := newReferralCache(cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if cfg.Cache.Driver == config.CacheDriverMemory {
		logrus.Warn("In-memory cache is process local; running servers keep serving their cached copy until restart")
	}

	publisher, err := newPublisher(cfg)
	if err != nil {
		closeCache()
		_ = db.Close()
		return nil, err
	}

	userRepo := repository.NewUserRepository(db)
	referralService := service.NewReferralCodeService(
		userRepo,
		repository.NewReferralCodeRepository(db),
		referralCache,
		service.WithPublisher(publisher),
		// The process exits right after the command, so publish inline.
		service.WithAsyncRunner(func(task func()) { task() }),
	)

	return &referralCommandEnv{
		db:              db,
		userRepo:        userRepo,
		referralService: referralService,
		publisher:       publisher,
		closeCache:      closeCache,
	}, nil
}

func (e *referralCommandEnv) resolveUserID(email string) (uint64, error) {
	user, err := e.userRepo.FindByCanonicalEmail(context.Background(), service.CanonicalizeEmail(email))
	if err != nil {
		return 0, err
	}
	if user == nil {
		return 0, fmt.Errorf("no user registered with %q", email)
	}
	return user.ID, nil
}

func (e *referralCommandEnv) Close() {
	_ = e.publisher.Close()
	e.closeCache()
	_ = e.db.Close()
}

func printReferralCode(w io.Writer, code *types.ReferralCodeResponse) {
	fmt.Fprintf(w, "code: %s\n", code.Code)
	fmt.Fprintf(w, "user_id: %d\n", code.UserID)
	fmt.Fprintf(w, "expiry_date: %s\n", code.ExpiryDate.Format(time.RFC3339))
	fmt.Fprintf(w, "is_active: %t\n", code.IsActive)
}

func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	input, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

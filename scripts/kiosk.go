// 终端版问卷终端（kiosk），通过网关完成登录、资料填写和文字/音频/视频问卷
//
// 录制使用本机 ffmpeg，会话可保存在内存或 Redis 中（多台终端共用 Redis 时便于排查）。
//
// 用法: go run scripts/kiosk.go -config configs/kiosk.yaml

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"puls_survey/internal/capture"
	"puls_survey/internal/client"
	"puls_survey/internal/config"
	"puls_survey/internal/flow"
	"puls_survey/internal/model"
	"puls_survey/internal/session"
	"puls_survey/internal/upload"
	"puls_survey/pkg/database"
	"puls_survey/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type kioskConfig struct {
	GatewayURL          string               `yaml:"gateway_url"`
	Timeout             time.Duration        `yaml:"timeout"`
	Mode                string               `yaml:"mode"`
	FFmpeg              capture.FFmpegConfig `yaml:"ffmpeg"`
	CheckDuplicatePhone bool                 `yaml:"check_duplicate_phone"`
}

func loadKioskConfig(path string) (*kioskConfig, error) {
	cfg := &kioskConfig{
		GatewayURL: "http://localhost:3000/api",
		Timeout:    60 * time.Second,
		Mode:       "release",
		FFmpeg:     capture.DefaultFFmpegConfig(),
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newStore 会话后端和 Redis 连接使用服务端配置中的 session / redis 段
func newStore(cfg *config.Config) (session.Store, error) {
	if cfg.Session.Backend != "redis" {
		return session.NewMemoryStore(), nil
	}
	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		return nil, err
	}
	return session.NewRedisStore(rdb, cfg.Session.TTL), nil
}

type kiosk struct {
	ctl *flow.Controller
	in  *bufio.Scanner
	log *zap.Logger
}

func main() {
	configPath := flag.String("config", "configs/kiosk.yaml", "终端配置文件")
	sharedDir := flag.String("shared-config", "configs", "共用配置目录（session、redis）")
	flag.Parse()

	cfg, err := loadKioskConfig(*configPath)
	if err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}
	shared, err := config.LoadConfig(*sharedDir)
	if err != nil {
		log.Fatalf("读取共用配置失败: %v", err)
	}
	shared.Server.Mode = cfg.Mode

	logger.InitLogger(shared)
	defer logger.Log.Sync()
	kioskLog := logger.Named("kiosk").With(zap.String("kiosk_id", uuid.NewString()))

	store, err := newStore(shared)
	if err != nil {
		log.Fatalf("会话存储初始化失败: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw := client.New(cfg.GatewayURL,
		client.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		client.WithLogger(kioskLog.Named("client")))
	if err := gw.Health(ctx); err != nil {
		kioskLog.Warn("Gateway health check failed", zap.Error(err))
		fmt.Println("Warning: the survey backend is not reachable right now.")
	}

	var device capture.Device
	ff := capture.NewFFmpegDevice(cfg.FFmpeg, kioskLog.Named("capture"))
	if ff.Supported() {
		device = ff
	} else {
		fmt.Println("ffmpeg was not found, only text surveys are available.")
	}

	k := &kiosk{
		in:  bufio.NewScanner(os.Stdin),
		log: kioskLog,
	}
	k.ctl = flow.NewController(gw, store, upload.NewPipeline(gw, kioskLog.Named("upload")), device,
		flow.WithLogger(kioskLog.Named("flow")),
		flow.WithDuplicatePhoneCheck(cfg.CheckDuplicatePhone),
		flow.WithEngineOptions(capture.WithObserver(func(s capture.State) {
			fmt.Printf("  [recorder: %s]\n", s)
		})),
	)

	if err := k.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		kioskLog.Error("Kiosk stopped", zap.Error(err))
		os.Exit(1)
	}
}

// prompt 读取一行输入，stdin 关闭时返回 context.Canceled
func (k *kiosk) prompt(label string) (string, error) {
	fmt.Print(label)
	if !k.in.Scan() {
		if err := k.in.Err(); err != nil {
			return "", err
		}
		return "", context.Canceled
	}
	return strings.TrimSpace(k.in.Text()), nil
}

func (k *kiosk) showNotice() {
	if n := k.ctl.Notice(); n != "" {
		fmt.Println("!", n)
	}
}

// report 展示提示；凭证过期时回到登录页
func (k *kiosk) report(ctx context.Context, err error) {
	k.showNotice()
	if client.IsUnauthorized(err) {
		k.log.Info("Session expired, logging out")
		k.ctl.Logout(ctx)
	}
}

func (k *kiosk) run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var err error
		switch k.ctl.Screen() {
		case flow.ScreenLogin:
			err = k.login(ctx)
		case flow.ScreenHome:
			err = k.home(ctx)
		case flow.ScreenProfile:
			err = k.profile(ctx)
		case flow.ScreenTypeSelection:
			err = k.typeSelection(ctx)
		case flow.ScreenText:
			err = k.textSurvey(ctx)
		case flow.ScreenAudio, flow.ScreenVideo:
			err = k.mediaSurvey(ctx)
		case flow.ScreenSuccess:
			err = k.success(ctx)
		}
		if err != nil {
			return err
		}
	}
}

func (k *kiosk) login(ctx context.Context) error {
	fmt.Println("\n== PULS Survey ==")
	user, err := k.prompt("Username: ")
	if err != nil {
		return err
	}
	pass, err := k.prompt("Password: ")
	if err != nil {
		return err
	}
	if err := k.ctl.Login(ctx, user, pass); err != nil {
		k.report(ctx, err)
	}
	return nil
}

func (k *kiosk) home(ctx context.Context) error {
	sess, err := k.ctl.Session(ctx)
	if err != nil {
		k.ctl.Navigate(ctx, flow.ScreenHome)
		return nil
	}
	fmt.Printf("\nGood %s, %s\n%s\n", k.ctl.Greeting(), sess.OrgName, sess.ExperienceTitle())
	answer, err := k.prompt("Accept the terms and conditions? [y/N/logout]: ")
	if err != nil {
		return err
	}
	if answer == "logout" {
		return k.ctl.Logout(ctx)
	}
	if err := k.ctl.AcceptTerms(ctx, strings.EqualFold(answer, "y")); err != nil {
		k.report(ctx, err)
	}
	return nil
}

func (k *kiosk) profile(ctx context.Context) error {
	questions, err := k.ctl.LoadProfile(ctx)
	if err != nil {
		k.report(ctx, err)
		_, err := k.prompt("Press enter to retry ")
		return err
	}

	fmt.Println("\n-- Profile --")
	for _, q := range questions {
		kind, _ := q.Kind()
		label := q.Label()
		if kind == model.KindDropdown {
			for _, ch := range q.Choices {
				fmt.Printf("  %d) %s\n", ch.ID, ch.Values)
			}
			label += " (choice id)"
		}
		v, err := k.prompt(label + ": ")
		if err != nil {
			return err
		}
		if kind == model.KindDropdown {
			if id, err := strconv.Atoi(v); err == nil {
				for _, ch := range q.Choices {
					if ch.ID == id {
						v = ch.Values
					}
				}
			}
		}
		if _, err := k.ctl.SetProfileInput(ctx, q.ID, v); err != nil {
			k.report(ctx, err)
			return nil
		}
	}
	if err := k.ctl.SubmitProfile(ctx); err != nil {
		k.report(ctx, err)
	}
	return nil
}

func (k *kiosk) typeSelection(ctx context.Context) error {
	v, err := k.prompt("\nAnswer by [text/audio/video] (or logout): ")
	if err != nil {
		return err
	}
	if v == "logout" {
		return k.ctl.Logout(ctx)
	}
	m, err := model.ParseModality(v)
	if err != nil {
		fmt.Println("!", err)
		return nil
	}
	if err := k.ctl.SelectModality(ctx, m); err != nil {
		k.report(ctx, err)
	}
	return nil
}

func (k *kiosk) textSurvey(ctx context.Context) error {
	for _, q := range k.ctl.Questions() {
		kind, _ := q.Kind()
		fmt.Printf("\n%s\n", q.Question)
		if q.SecondaryQuestion != "" {
			fmt.Println(q.SecondaryQuestion)
		}
		for _, ch := range q.Choices {
			fmt.Printf("  %d) %s\n", ch.ID, ch.Value)
		}

		switch kind {
		case model.KindSingleChoice, model.KindDropdown:
			v, err := k.prompt("Choice: ")
			if err != nil {
				return err
			}
			if id, convErr := strconv.Atoi(v); convErr == nil {
				if err := k.ctl.SelectChoice(ctx, q.QuestionnaireID, id); err != nil {
					fmt.Println("!", err)
				}
			}
		case model.KindMultipleChoice:
			v, err := k.prompt("Choices (comma separated): ")
			if err != nil {
				return err
			}
			for _, part := range strings.Split(v, ",") {
				if id, convErr := strconv.Atoi(strings.TrimSpace(part)); convErr == nil {
					if err := k.ctl.ToggleChoice(ctx, q.QuestionnaireID, id, true); err != nil {
						fmt.Println("!", err)
					}
				}
			}
		default:
			v, err := k.prompt("Answer: ")
			if err != nil {
				return err
			}
			if err := k.ctl.SetText(ctx, q.QuestionnaireID, v); err != nil {
				fmt.Println("!", err)
			}
		}
	}

	if err := k.ctl.SubmitText(ctx); err != nil {
		k.report(ctx, err)
		v, err := k.prompt("Try again? [Y/n]: ")
		if err != nil {
			return err
		}
		if strings.EqualFold(v, "n") {
			k.ctl.Navigate(ctx, flow.ScreenTypeSelection)
		}
	}
	return nil
}

func (k *kiosk) mediaSurvey(ctx context.Context) error {
	q, index, total, ok := k.ctl.CurrentQuestion()
	if !ok {
		k.ctl.Navigate(ctx, flow.ScreenTypeSelection)
		return nil
	}
	fmt.Printf("\nQuestion %d of %d\n%s\n", index+1, total, q.Question)

	cmd, err := k.prompt("[r]ecord  [s]top  re[t]ake  [n]ext  [b]ack: ")
	if err != nil {
		return err
	}
	switch cmd {
	case "r":
		if err := k.ctl.StartRecording(ctx); err != nil {
			k.report(ctx, err)
		} else {
			fmt.Println("Recording, stops automatically after 30 seconds.")
		}
	case "s":
		blob, err := k.ctl.StopRecording(ctx)
		if err != nil {
			k.showNotice()
		} else {
			fmt.Printf("Recorded %d bytes (%s)\n", len(blob.Data), blob.MimeType)
		}
	case "t":
		if err := k.ctl.Retake(ctx); err != nil {
			k.report(ctx, err)
		}
	case "n":
		fmt.Println("Uploading...")
		if err := k.ctl.Next(ctx); err != nil {
			k.report(ctx, err)
		}
	case "b":
		k.ctl.Navigate(ctx, flow.ScreenTypeSelection)
	}
	return nil
}

func (k *kiosk) success(ctx context.Context) error {
	fmt.Println("\nThank you! Your responses have been submitted.")
	if _, err := k.prompt("Press enter to finish "); err != nil {
		return err
	}
	return k.ctl.BackToLogin(ctx)
}

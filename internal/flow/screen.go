package flow

import (
	"context"
	"errors"
	"fmt"

	"puls_survey/internal/model"
	"puls_survey/internal/session"
)

// Screen 问卷流程中的页面，只能前进，缺少前置条件时回退
type Screen int

const (
	ScreenLogin Screen = iota
	ScreenHome
	ScreenProfile
	ScreenTypeSelection
	ScreenText
	ScreenAudio
	ScreenVideo
	ScreenSuccess
)

func (s Screen) String() string {
	switch s {
	case ScreenLogin:
		return "login"
	case ScreenHome:
		return "home"
	case ScreenProfile:
		return "profile"
	case ScreenTypeSelection:
		return "type_selection"
	case ScreenText:
		return "text"
	case ScreenAudio:
		return "audio"
	case ScreenVideo:
		return "video"
	case ScreenSuccess:
		return "success"
	}
	return fmt.Sprintf("Screen(%d)", int(s))
}

// ScreenFor 作答方式对应的页面
func ScreenFor(m model.Modality) Screen {
	switch m {
	case model.ModalityAudio:
		return ScreenAudio
	case model.ModalityVideo:
		return ScreenVideo
	}
	return ScreenText
}

func (s Screen) isModality() bool {
	return s == ScreenText || s == ScreenAudio || s == ScreenVideo
}

// guard 返回满足前置条件的页面：target 本身或它应回退到的页面
func (c *Controller) guard(ctx context.Context, target Screen) (Screen, error) {
	switch target {
	case ScreenLogin:
		return ScreenLogin, nil
	case ScreenSuccess:
		if !c.submitted {
			return ScreenLogin, nil
		}
		return ScreenSuccess, nil
	}

	if _, err := session.Current(ctx, c.store); err != nil {
		if errors.Is(err, session.ErrNoSession) {
			return ScreenLogin, nil
		}
		return ScreenLogin, err
	}
	if target == ScreenHome {
		return ScreenHome, nil
	}

	accepted, err := session.TermsAccepted(ctx, c.store)
	if err != nil {
		return ScreenHome, err
	}
	if target == ScreenProfile {
		if !accepted {
			return ScreenHome, nil
		}
		return ScreenProfile, nil
	}

	if _, ok, err := session.ShopperID(ctx, c.store); err != nil || !ok {
		if !accepted {
			return ScreenHome, err
		}
		return ScreenProfile, err
	}
	if target == ScreenTypeSelection {
		return ScreenTypeSelection, nil
	}

	m, ok, err := session.Modality(ctx, c.store)
	if err != nil || !ok || ScreenFor(m) != target || len(c.questions) == 0 {
		return ScreenTypeSelection, err
	}
	return target, nil
}

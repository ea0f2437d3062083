package flow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"puls_survey/internal/capture"
	"puls_survey/internal/model"
	"puls_survey/internal/session"
	"puls_survey/internal/util"
)

type fakeGateway struct {
	loginErr     error
	profileQs    []model.ProfileQuestion
	profileSubs  []model.ProfileSubmission
	profileErr   error
	questions    map[model.Modality][]model.SurveyQuestion
	submissions  []model.SurveySubmission
	submitErr    error
	duplicate    bool
	duplicateErr error
	phoneChecks  []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		profileQs: []model.ProfileQuestion{
			{ID: 1, Question: "full name", QuestionTypeValue: "Free Text", QuestionStatus: "active"},
			{ID: 2, Question: "mobile number", QuestionTypeValue: "Free Text", QuestionStatus: "active"},
			{ID: 3, Question: "email", QuestionTypeValue: "email", QuestionStatus: "active"},
			{ID: 4, Question: "city", QuestionTypeValue: "dropdown", QuestionStatus: "active",
				Choices: []model.ProfileChoice{{ID: 40, Values: "Pune"}, {ID: 41, Values: "Delhi"}}},
		},
		questions: map[model.Modality][]model.SurveyQuestion{},
	}
}

func (g *fakeGateway) Login(ctx context.Context, username, password string) (*model.Session, error) {
	if g.loginErr != nil {
		return nil, g.loginErr
	}
	return &model.Session{
		AccessToken: "tok", SurveyID: 45, StoreID: 9, OrgName: "Org",
		Subtypes: []model.Subtype{{ID: 3, Name: "Retail"}},
	}, nil
}

func (g *fakeGateway) ProfileQuestions(ctx context.Context, token string, surveyID int) ([]model.ProfileQuestion, error) {
	return g.profileQs, nil
}

func (g *fakeGateway) AddProfileData(ctx context.Context, token string, sub model.ProfileSubmission) (*model.ProfileResult, error) {
	g.profileSubs = append(g.profileSubs, sub)
	if g.profileErr != nil {
		return nil, g.profileErr
	}
	return &model.ProfileResult{CustomerProfileID: 777}, nil
}

func (g *fakeGateway) Questions(ctx context.Context, token string, m model.Modality, studyType int) ([]model.SurveyQuestion, error) {
	return g.questions[m], nil
}

func (g *fakeGateway) SubmitResults(ctx context.Context, token string, sub model.SurveySubmission) error {
	g.submissions = append(g.submissions, sub)
	return g.submitErr
}

func (g *fakeGateway) CheckPhoneDuplicate(ctx context.Context, token, phone string) (bool, error) {
	g.phoneChecks = append(g.phoneChecks, phone)
	return g.duplicate, g.duplicateErr
}

type fakeUploader struct {
	err   error
	calls []int
}

func (u *fakeUploader) Upload(ctx context.Context, token string, qid int, blob *capture.Blob) (model.Recording, error) {
	u.calls = append(u.calls, qid)
	if u.err != nil {
		return model.Recording{}, u.err
	}
	return model.Recording{QuestionnaireID: qid, Key: "key-" + string(rune('a'+len(u.calls)-1))}, nil
}

type track struct {
	mu   sync.Mutex
	live bool
}

func (t *track) Kind() string { return "audio" }
func (t *track) Stop()        { t.mu.Lock(); t.live = false; t.mu.Unlock() }
func (t *track) Live() bool   { t.mu.Lock(); defer t.mu.Unlock(); return t.live }

type stream struct{ tracks []capture.Track }

func (s *stream) Tracks() []capture.Track { return s.tracks }
func (s *stream) Ready(ctx context.Context) error { return nil }

type recorder struct{ sink func([]byte) }

func (r *recorder) Start(ts time.Duration, sink func([]byte)) error { r.sink = sink; return nil }
func (r *recorder) Stop() error { r.sink([]byte("media")); return nil }

type device struct {
	deny    bool
	streams []*stream
}

func (d *device) Supported() bool { return true }

func (d *device) Acquire(ctx context.Context, c capture.Constraints) (capture.Stream, error) {
	if d.deny {
		return nil, errors.New("NotAllowedError: Permission denied")
	}
	s := &stream{tracks: []capture.Track{&track{live: true}}}
	d.streams = append(d.streams, s)
	return s, nil
}

func (d *device) IsTypeSupported(string) bool { return false }

func (d *device) NewRecorder(s capture.Stream, mime string) (capture.Recorder, error) {
	return &recorder{}, nil
}

func (d *device) liveTracks() int {
	n := 0
	for _, s := range d.streams {
		n += capture.LiveTracks(s)
	}
	return n
}

type harness struct {
	gw    *fakeGateway
	up    *fakeUploader
	dev   *device
	store *session.MemoryStore
	ctrl  *Controller
	ctx   context.Context
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		gw:    newFakeGateway(),
		up:    &fakeUploader{},
		dev:   &device{},
		store: session.NewMemoryStore(),
		ctx:   context.Background(),
	}
	h.ctrl = NewController(h.gw, h.store, h.up, h.dev, opts...)
	return h
}

// toTypeSelection 登录、接受条款、提交资料
func (h *harness) toTypeSelection(t *testing.T) {
	t.Helper()
	require.NoError(t, h.ctrl.Login(h.ctx, "alice", "pw"))
	require.NoError(t, h.ctrl.AcceptTerms(h.ctx, true))
	_, err := h.ctrl.LoadProfile(h.ctx)
	require.NoError(t, err)
	setProfile(t, h, 1, "Asha Rao")
	setProfile(t, h, 2, "98765 43210")
	setProfile(t, h, 3, "asha@example.com")
	setProfile(t, h, 4, "40")
	require.NoError(t, h.ctrl.SubmitProfile(h.ctx))
	require.Equal(t, ScreenTypeSelection, h.ctrl.Screen())
}

func setProfile(t *testing.T, h *harness, questionID int, value string) {
	t.Helper()
	_, err := h.ctrl.SetProfileInput(h.ctx, questionID, value)
	require.NoError(t, err)
}

func mediaQuestions(n int) []model.SurveyQuestion {
	qs := make([]model.SurveyQuestion, 0, n)
	for i := 1; i <= n; i++ {
		qs = append(qs, model.SurveyQuestion{QuestionnaireID: 100 + i, Question: "Tell us", QuestionTypeValue: "Free Text", QuestionStatus: model.StatusActive})
	}
	return qs
}

func TestLoginToTypeSelection(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.ctrl.Login(h.ctx, "alice", "pw"))
	assert.Equal(t, ScreenHome, h.ctrl.Screen())

	sess, err := session.Current(h.ctx, h.store)
	require.NoError(t, err)
	assert.Equal(t, "tok", sess.AccessToken)

	err = h.ctrl.AcceptTerms(h.ctx, false)
	require.ErrorIs(t, err, util.ErrValidationFailed)
	assert.Equal(t, "Please accept the terms to proceed", h.ctrl.Notice())
	assert.Equal(t, ScreenHome, h.ctrl.Screen())

	require.NoError(t, h.ctrl.AcceptTerms(h.ctx, true))
	assert.Equal(t, ScreenProfile, h.ctrl.Screen())

	qs, err := h.ctrl.LoadProfile(h.ctx)
	require.NoError(t, err)
	assert.Len(t, qs, 4)

	stored, err := h.ctrl.SetProfileInput(h.ctx, 2, "(987) 654-32109")
	require.NoError(t, err)
	assert.Equal(t, "9876543210", stored, "non-digits stripped, truncated to 10")
	setProfile(t, h, 1, "Asha Rao")
	setProfile(t, h, 3, "asha@example.com")
	setProfile(t, h, 4, "41")
	require.NoError(t, h.ctrl.SubmitProfile(h.ctx))

	assert.Equal(t, ScreenTypeSelection, h.ctrl.Screen())
	id, ok, err := session.ShopperID(h.ctx, h.store)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 777, id)

	require.Len(t, h.gw.profileSubs, 1)
	sub := h.gw.profileSubs[0]
	assert.Equal(t, "+91", sub.PhoneCode)
	assert.Equal(t, 45, sub.SurveyID)
	require.NotNil(t, sub.StudyTypeID)
	assert.Equal(t, 3, *sub.StudyTypeID)
	assert.Equal(t, []string{"41"}, sub.Questions[3].Choices)
	assert.Empty(t, sub.Questions[0].Choices)
	assert.Equal(t, "9876543210", sub.Questions[1].InputValue)
}

func TestSetProfileInput_OnlyOnProfileScreen(t *testing.T) {
	h := newHarness(t)

	_, err := h.ctrl.SetProfileInput(h.ctx, 2, "9876543210")
	require.ErrorIs(t, err, ErrWrongScreen)
	assert.Equal(t, ScreenLogin, h.ctrl.Screen())

	h.toTypeSelection(t)
	_, err = h.ctrl.SetProfileInput(h.ctx, 2, "1111111111")
	require.ErrorIs(t, err, ErrWrongScreen)
	assert.Equal(t, ScreenTypeSelection, h.ctrl.Screen())
	assert.Equal(t, "9876543210", h.ctrl.profileInputs[2])
}

func TestLogin_Validation(t *testing.T) {
	h := newHarness(t)

	err := h.ctrl.Login(h.ctx, " ", "pw")
	require.ErrorIs(t, err, util.ErrValidationFailed)
	assert.Equal(t, "Username and password are required", h.ctrl.Notice())

	h.gw.loginErr = &util.UpstreamError{Status: 401, Detail: "Login failed"}
	err = h.ctrl.Login(h.ctx, "alice", "bad")
	require.ErrorIs(t, err, util.ErrUpstream)
	assert.Equal(t, "Login failed", h.ctrl.Notice())
	assert.Equal(t, ScreenLogin, h.ctrl.Screen())
}

func TestGreeting(t *testing.T) {
	at := func(h int) time.Time { return time.Date(2024, 1, 1, h, 0, 0, 0, time.UTC) }
	assert.Equal(t, "Evening", Greeting(at(4)))
	assert.Equal(t, "Morning", Greeting(at(5)))
	assert.Equal(t, "Morning", Greeting(at(11)))
	assert.Equal(t, "Afternoon", Greeting(at(12)))
	assert.Equal(t, "Afternoon", Greeting(at(17)))
	assert.Equal(t, "Evening", Greeting(at(18)))
}

func TestGuards(t *testing.T) {
	h := newHarness(t)

	for _, target := range []Screen{ScreenHome, ScreenProfile, ScreenTypeSelection, ScreenText, ScreenAudio, ScreenVideo, ScreenSuccess} {
		landed, err := h.ctrl.Navigate(h.ctx, target)
		require.NoError(t, err)
		assert.Equal(t, ScreenLogin, landed, "no session: %s", target)
	}

	require.NoError(t, h.ctrl.Login(h.ctx, "alice", "pw"))
	landed, _ := h.ctrl.Navigate(h.ctx, ScreenProfile)
	assert.Equal(t, ScreenHome, landed, "terms not accepted")

	require.NoError(t, h.ctrl.AcceptTerms(h.ctx, true))
	landed, _ = h.ctrl.Navigate(h.ctx, ScreenTypeSelection)
	assert.Equal(t, ScreenProfile, landed, "no shopper id")

	require.NoError(t, session.SetShopperID(h.ctx, h.store, 5))
	landed, _ = h.ctrl.Navigate(h.ctx, ScreenAudio)
	assert.Equal(t, ScreenTypeSelection, landed, "no modality selected")

	landed, _ = h.ctrl.Navigate(h.ctx, ScreenSuccess)
	assert.Equal(t, ScreenLogin, landed, "nothing submitted")
}

func TestProfileValidation(t *testing.T) {
	qs := newFakeGateway().profileQs
	valid := func() map[int]string {
		return map[int]string{1: "Asha Rao", 2: "9876543210", 3: "a@b.co", 4: "40"}
	}

	cases := []struct {
		name   string
		mutate func(map[int]string)
		msg    string
	}{
		{"empty names the question", func(m map[int]string) { m[2] = "  " }, "Please fill out mobile number"},
		{"first failure wins", func(m map[int]string) { m[1] = ""; m[3] = "" }, "Please fill out full name"},
		{"short name", func(m map[int]string) { m[1] = "Al" }, "Name must be at least 3 characters long"},
		{"name letters only", func(m map[int]string) { m[1] = "R2D2" }, "Name can only contain letters and spaces"},
		{"phone 9 digits", func(m map[int]string) { m[2] = "987654321" }, "Mobile number must be exactly 10 digits"},
		{"phone 11 digits", func(m map[int]string) { m[2] = "98765432101" }, "Mobile number must be exactly 10 digits"},
		{"email", func(m map[int]string) { m[3] = "a@b" }, "Please enter a valid email address"},
	}

	require.NoError(t, ValidateProfile(qs, valid()))
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := valid()
			tc.mutate(in)
			err := ValidateProfile(qs, in)
			require.ErrorIs(t, err, util.ErrValidationFailed)
			assert.Equal(t, tc.msg, err.Error())
		})
	}
}

func TestSubmitProfile_DuplicatePhone(t *testing.T) {
	h := newHarness(t, WithDuplicatePhoneCheck(true))
	h.gw.duplicate = true

	require.NoError(t, h.ctrl.Login(h.ctx, "alice", "pw"))
	require.NoError(t, h.ctrl.AcceptTerms(h.ctx, true))
	_, err := h.ctrl.LoadProfile(h.ctx)
	require.NoError(t, err)
	setProfile(t, h, 1, "Asha Rao")
	setProfile(t, h, 2, "9876543210")
	setProfile(t, h, 3, "asha@example.com")
	setProfile(t, h, 4, "40")

	err = h.ctrl.SubmitProfile(h.ctx)
	require.ErrorIs(t, err, util.ErrValidationFailed)
	assert.Equal(t, []string{"9876543210"}, h.gw.phoneChecks)
	assert.Empty(t, h.gw.profileSubs)
	assert.Equal(t, ScreenProfile, h.ctrl.Screen())

	// 查重接口失败时按未重复处理
	h.gw.duplicate = false
	h.gw.duplicateErr = util.ErrTransport
	require.NoError(t, h.ctrl.SubmitProfile(h.ctx))
	assert.Equal(t, ScreenTypeSelection, h.ctrl.Screen())
}

func TestSelectModality_NoActiveQuestions(t *testing.T) {
	h := newHarness(t)
	h.toTypeSelection(t)
	h.gw.questions[model.ModalityText] = []model.SurveyQuestion{
		{QuestionnaireID: 1, QuestionTypeValue: "Single Choice", QuestionStatus: model.StatusInactive},
	}

	err := h.ctrl.SelectModality(h.ctx, model.ModalityText)
	require.ErrorIs(t, err, util.ErrNoQuestions)
	assert.Equal(t, "There are no questions for this Survey, please try again", h.ctrl.Notice())
	assert.Equal(t, ScreenTypeSelection, h.ctrl.Screen())
}

func TestSelectModality_ActiveFilter(t *testing.T) {
	h := newHarness(t)
	h.toTypeSelection(t)
	h.gw.questions[model.ModalityText] = []model.SurveyQuestion{
		{QuestionnaireID: 1, QuestionTypeValue: "Single Choice", QuestionStatus: model.StatusActive},
		{QuestionnaireID: 2, QuestionTypeValue: "Single Choice", QuestionStatus: model.StatusInactive},
		{QuestionnaireID: 3, QuestionTypeValue: "Ranking", QuestionStatus: model.StatusActive},
		{QuestionnaireID: 4, QuestionTypeValue: "Free Text", QuestionStatus: model.StatusActive},
	}

	require.NoError(t, h.ctrl.SelectModality(h.ctx, model.ModalityText))
	assert.Equal(t, ScreenText, h.ctrl.Screen())

	var ids []int
	for _, q := range h.ctrl.Questions() {
		ids = append(ids, q.QuestionnaireID)
	}
	assert.Equal(t, []int{1, 4}, ids, "inactive and unknown kinds are never presented")

	m, ok, err := session.Modality(h.ctx, h.store)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, model.ModalityText, m)
}

func textSurvey() []model.SurveyQuestion {
	return []model.SurveyQuestion{
		{QuestionnaireID: 11, Question: "Q1", QuestionTypeValue: "Single Choice", QuestionStatus: model.StatusActive,
			Choices: []model.Choice{{ID: 1, Value: "Yes"}, {ID: 2, Value: "No"}}},
		{QuestionnaireID: 12, Question: "Q2", QuestionTypeValue: "Single Choice", QuestionStatus: model.StatusActive,
			Choices: []model.Choice{{ID: 3, Value: "Good"}, {ID: 4, Value: "Bad"}}},
		{QuestionnaireID: 13, Question: "Q3", QuestionTypeValue: "Free Text", QuestionStatus: model.StatusActive},
	}
}

func TestTextSurvey_TwoSingleOneFreeText(t *testing.T) {
	h := newHarness(t)
	h.toTypeSelection(t)
	h.gw.questions[model.ModalityText] = textSurvey()
	require.NoError(t, h.ctrl.SelectModality(h.ctx, model.ModalityText))

	require.NoError(t, h.ctrl.SelectChoice(h.ctx, 11, 2))
	require.NoError(t, h.ctrl.SelectChoice(h.ctx, 12, 3))

	err := h.ctrl.SubmitText(h.ctx)
	require.ErrorIs(t, err, util.ErrValidationFailed)
	assert.Equal(t, "Please answer all questions before submitting", h.ctrl.Notice())
	assert.Empty(t, h.gw.submissions)

	require.NoError(t, h.ctrl.SetText(h.ctx, 13, "Friendly staff"))
	require.NoError(t, h.ctrl.SubmitText(h.ctx))

	require.Len(t, h.gw.submissions, 1)
	sub := h.gw.submissions[0]
	assert.Equal(t, []model.SurveyResult{
		{QuestionnaireID: 11, ChoiceID: []int{2}},
		{QuestionnaireID: 12, ChoiceID: []int{3}},
		{QuestionnaireID: 13, ChoiceID: []int{}, InputValue: "Friendly staff"},
	}, sub.AddSurveyResults)
	assert.Equal(t, 45, sub.SurveyID)
	assert.Equal(t, 3, sub.StudyTypeID)
	assert.Equal(t, 9, sub.StoreID)
	assert.Equal(t, 777, sub.CreatedByID)

	assert.Equal(t, ScreenSuccess, h.ctrl.Screen())
	_, err = session.Current(h.ctx, h.store)
	assert.ErrorIs(t, err, session.ErrNoSession, "success clears the session")
	assert.Zero(t, h.store.Len())

	landed, _ := h.ctrl.Navigate(h.ctx, ScreenSuccess)
	assert.Equal(t, ScreenSuccess, landed)
	require.NoError(t, h.ctrl.BackToLogin(h.ctx))
	assert.Equal(t, ScreenLogin, h.ctrl.Screen())
}

func TestTextSurvey_Rules(t *testing.T) {
	h := newHarness(t)
	h.toTypeSelection(t)
	qs := textSurvey()
	qs[1] = model.SurveyQuestion{QuestionnaireID: 12, QuestionTypeValue: "Multiple Choice", QuestionStatus: model.StatusActive,
		Choices: []model.Choice{{ID: 3}, {ID: 4}, {ID: 5}}}
	h.gw.questions[model.ModalityText] = qs
	require.NoError(t, h.ctrl.SelectModality(h.ctx, model.ModalityText))

	assert.Error(t, h.ctrl.SelectChoice(h.ctx, 11, 99), "choice must belong to the question")
	assert.Error(t, h.ctrl.SetText(h.ctx, 11, "text"), "kind mismatch")
	assert.Error(t, h.ctrl.SelectChoice(h.ctx, 999, 1), "unknown question")

	require.NoError(t, h.ctrl.ToggleChoice(h.ctx, 12, 5, true))
	require.NoError(t, h.ctrl.ToggleChoice(h.ctx, 12, 3, true))
	require.NoError(t, h.ctrl.ToggleChoice(h.ctx, 12, 4, true))
	require.NoError(t, h.ctrl.ToggleChoice(h.ctx, 12, 3, false))
	assert.Equal(t, []int{5, 4}, h.ctrl.Answers()[12].ChoiceIDs)

	require.NoError(t, h.ctrl.SelectChoice(h.ctx, 11, 1))
	long := make([]byte, 251)
	for i := range long {
		long[i] = 'a'
	}
	require.NoError(t, h.ctrl.SetText(h.ctx, 13, string(long)))
	err := h.ctrl.SubmitText(h.ctx)
	require.ErrorIs(t, err, util.ErrValidationFailed)
	assert.Equal(t, "Text exceeds the maximum allowed length of 250 characters", h.ctrl.Notice())

	require.NoError(t, h.ctrl.SetText(h.ctx, 13, string(long[:250])))
	h.gw.submitErr = &util.UpstreamError{Status: 500}
	err = h.ctrl.SubmitText(h.ctx)
	require.ErrorIs(t, err, util.ErrSubmissionFailed)
	assert.Equal(t, ScreenText, h.ctrl.Screen())
	assert.Len(t, h.ctrl.Answers(), 3, "answers kept for retry")

	h.gw.submitErr = nil
	require.NoError(t, h.ctrl.SubmitText(h.ctx))
	assert.Len(t, h.gw.submissions, 2)
	assert.Len(t, h.gw.submissions[1].AddSurveyResults, 3)
	assert.Equal(t, []int{5, 4}, h.gw.submissions[1].AddSurveyResults[1].ChoiceID)
}

func TestAudioSurvey_MicrophoneDenied(t *testing.T) {
	h := newHarness(t)
	h.dev.deny = true
	h.toTypeSelection(t)
	h.gw.questions[model.ModalityAudio] = mediaQuestions(2)
	require.NoError(t, h.ctrl.SelectModality(h.ctx, model.ModalityAudio))

	err := h.ctrl.StartRecording(h.ctx)
	require.ErrorIs(t, err, util.ErrDeviceUnavailable)
	assert.Equal(t, "Unable to access the recording device. Please check permissions and try again.", h.ctrl.Notice())
	assert.Equal(t, ScreenAudio, h.ctrl.Screen())
	assert.Equal(t, capture.StateIdle, h.ctrl.Engine().State())

	err = h.ctrl.Next(h.ctx)
	require.ErrorIs(t, err, util.ErrValidationFailed, "nothing recorded yet")
	assert.Empty(t, h.up.calls)
}

func TestAudioSurvey_UploadAndAdvance(t *testing.T) {
	h := newHarness(t)
	h.toTypeSelection(t)
	h.gw.questions[model.ModalityAudio] = mediaQuestions(2)
	require.NoError(t, h.ctrl.SelectModality(h.ctx, model.ModalityAudio))

	record := func() {
		require.NoError(t, h.ctrl.StartRecording(h.ctx))
		_, err := h.ctrl.StopRecording(h.ctx)
		require.NoError(t, err)
	}

	record()
	h.up.err = util.ErrUploadFailed
	require.ErrorIs(t, h.ctrl.Next(h.ctx), util.ErrUploadFailed)
	_, idx, _, _ := h.ctrl.CurrentQuestion()
	assert.Equal(t, 0, idx, "upload failure keeps the index")
	assert.Equal(t, capture.StateStopped, h.ctrl.Engine().State())
	assert.Equal(t, "Failed to upload recording. Please try again.", h.ctrl.Notice())

	h.up.err = nil
	require.NoError(t, h.ctrl.Next(h.ctx))
	q, idx, total, ok := h.ctrl.CurrentQuestion()
	require.True(t, ok)
	assert.Equal(t, 1, idx)
	assert.Equal(t, 2, total)
	assert.Equal(t, 102, q.QuestionnaireID)
	assert.Equal(t, capture.StateIdle, h.ctrl.Engine().State())
	assert.Len(t, h.ctrl.Recordings(), 1)

	record()
	h.gw.submitErr = errors.New("boom")
	require.ErrorIs(t, h.ctrl.Next(h.ctx), util.ErrSubmissionFailed)
	assert.Equal(t, ScreenAudio, h.ctrl.Screen())
	assert.Len(t, h.ctrl.Recordings(), 2)

	h.gw.submitErr = nil
	require.NoError(t, h.ctrl.Next(h.ctx))
	assert.Equal(t, ScreenSuccess, h.ctrl.Screen())
	assert.Equal(t, []int{101, 101, 102}, h.up.calls, "retry re-uploads only the failed recording")

	last := h.gw.submissions[len(h.gw.submissions)-1]
	assert.Equal(t, []model.SurveyResult{
		{QuestionnaireID: 101, ChoiceID: []int{}, FileLink: "key-b"},
		{QuestionnaireID: 102, ChoiceID: []int{}, FileLink: "key-c"},
	}, last.AddSurveyResults)
	assert.Zero(t, h.dev.liveTracks())
}

func TestVideoSurvey_RetakeAndNavigateAway(t *testing.T) {
	h := newHarness(t)
	h.toTypeSelection(t)
	h.gw.questions[model.ModalityVideo] = mediaQuestions(1)
	require.NoError(t, h.ctrl.SelectModality(h.ctx, model.ModalityVideo))
	assert.Equal(t, ScreenVideo, h.ctrl.Screen())

	require.NoError(t, h.ctrl.StartRecording(h.ctx))
	assert.Equal(t, 1, h.dev.liveTracks())
	require.NoError(t, h.ctrl.Retake(h.ctx))
	assert.Zero(t, h.dev.liveTracks())
	assert.Equal(t, capture.StateIdle, h.ctrl.Engine().State())

	require.NoError(t, h.ctrl.StartRecording(h.ctx))
	landed, err := h.ctrl.Navigate(h.ctx, ScreenTypeSelection)
	require.NoError(t, err)
	assert.Equal(t, ScreenTypeSelection, landed)
	assert.Zero(t, h.dev.liveTracks(), "leaving the screen releases the device")
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
	fns []func()
}

type manualTimer struct{}

func (manualTimer) Stop() bool { return true }

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) capture.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fns = append(c.fns, f)
	return manualTimer{}
}

func (c *manualClock) fire(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	fns := c.fns
	c.fns = nil
	c.mu.Unlock()
	for _, f := range fns {
		f()
	}
}

func TestVideoSurvey_AutoStopThenNext(t *testing.T) {
	clock := &manualClock{now: time.Unix(0, 0)}
	h := newHarness(t, WithEngineOptions(capture.WithClock(clock)))
	h.toTypeSelection(t)
	h.gw.questions[model.ModalityVideo] = mediaQuestions(1)
	require.NoError(t, h.ctrl.SelectModality(h.ctx, model.ModalityVideo))

	require.NoError(t, h.ctrl.StartRecording(h.ctx))
	clock.fire(util.MaxRecordingDuration)

	e := h.ctrl.Engine()
	assert.Equal(t, capture.StateStopped, e.State())
	require.NotNil(t, e.Blob())
	assert.True(t, e.Blob().AutoStopped)
	assert.Equal(t, util.DefaultVideoMT, e.Blob().MimeType)

	require.NoError(t, h.ctrl.Next(h.ctx))
	assert.Equal(t, ScreenSuccess, h.ctrl.Screen())
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	h.toTypeSelection(t)

	require.NoError(t, h.ctrl.Logout(h.ctx))
	assert.Equal(t, ScreenLogin, h.ctrl.Screen())
	assert.Zero(t, h.store.Len())

	landed, _ := h.ctrl.Navigate(h.ctx, ScreenTypeSelection)
	assert.Equal(t, ScreenLogin, landed)
}

func TestBuildResults_OneEntryPerAnswer(t *testing.T) {
	qs := textSurvey()
	answers := map[int]Answer{11: {ChoiceIDs: []int{1}}, 12: {ChoiceIDs: []int{4}}, 13: {Text: "ok"}}
	results := BuildTextResults(qs, answers)
	require.Len(t, results, len(answers))
	for i, q := range qs {
		assert.Equal(t, q.QuestionnaireID, results[i].QuestionnaireID)
		assert.NotNil(t, results[i].ChoiceID)
	}

	recs := []model.Recording{{QuestionnaireID: 1, Key: "a"}, {QuestionnaireID: 2, Key: "b"}}
	assert.Len(t, BuildMediaResults(recs), 2)
}

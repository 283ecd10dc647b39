package prompt

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"lumichat/internal/models"
)

// Request is a fully assembled chat-completion request.
type Request struct {
	System   string        `json:"system"`
	Messages []ChatMessage `json:"messages"`
}

// Snapshot is the consistent view of state a prompt is assembled from.
// The chat service fills it in one synchronous pass before suspending on
// the outbound call, so a prompt never observes a half-applied write.
type Snapshot struct {
	Actor           *models.Actor
	Speaker         *models.Actor // group member taking this turn; nil outside group chats
	Members         []*models.Actor
	User            models.UserProfile
	GlobalMemory    string
	CharacterMemory string
	MemoryTable     string
	Emojis          []models.Emoji
	Live            models.LiveFacts
	History         []models.Message
	TurnContext     []string // "name: text" lines produced earlier in the same turn
	Capabilities    CapabilityFlags
	ContextWindow   int
}

func (s *Snapshot) speaker() *models.Actor {
	if s.Speaker != nil {
		return s.Speaker
	}
	return s.Actor
}

func (s *Snapshot) window() int {
	if s.ContextWindow <= 0 {
		return models.DefaultContextMessageCount
	}
	return s.ContextWindow
}

// Section layering is fixed: global memory, character memory, memory
// table, identity, scene, custom behavior, live facts, capabilities,
// bubble contract. Empty sections are omitted without residue.
func joinSections(sections ...string) string {
	out := make([]string, 0, len(sections))
	for _, s := range sections {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, "\n\n")
}

func section(header, body string) string {
	if strings.TrimSpace(body) == "" {
		return ""
	}
	return header + "\n" + strings.TrimSpace(body)
}

func tail(msgs []models.Message, k int) []models.Message {
	if len(msgs) <= k {
		return msgs
	}
	return msgs[len(msgs)-k:]
}

// BuildChat assembles the request for an individual chat reply or one
// group member's turn.
func BuildChat(s *Snapshot) Request {
	speaker := s.speaker()

	var scene string
	if s.Actor.IsGroup() {
		scene = groupSceneBlock(s)
	}

	system := joinSections(
		section("【全局记忆】", s.GlobalMemory),
		section("【角色记忆】", s.CharacterMemory),
		memoryTableSection(s.MemoryTable),
		identityBlock(speaker, s.User),
		scene,
		section("【行为要求】", speaker.CustomBehavior),
		liveFactsSection(s.Live),
		CapabilityBlock(Catalog(s.Capabilities, s.Emojis)),
	)

	msgs := RenderHistory(tail(s.History, s.window()), HistoryOptions{
		Group:       s.Actor.IsGroup(),
		SenderNames: s.senderNames(),
		UserName:    s.User.DisplayName(),
		Emojis:      models.NewEmojiIndex(s.Emojis),
	})
	msgs = AppendTurnContext(msgs, s.TurnContext)
	msgs = EnsureNonEmpty(msgs)

	return Request{System: system, Messages: msgs}
}

func (s *Snapshot) senderNames() map[string]string {
	names := make(map[string]string, len(s.Members))
	for _, m := range s.Members {
		names[m.ID] = m.Name
	}
	return names
}

func identityBlock(speaker *models.Actor, user models.UserProfile) string {
	var sb strings.Builder
	sb.WriteString("【身份设定】\n")
	sb.WriteString(fmt.Sprintf("你是「%s」。%s\n", speaker.Name, strings.TrimSpace(speaker.Persona)))
	sb.WriteString(fmt.Sprintf("正在和你对话的用户是「%s」。", user.DisplayName()))
	if p := strings.TrimSpace(user.Persona); p != "" {
		sb.WriteString(p)
	}
	sb.WriteString("\n记忆表格中的内容是本段对话的权威事实，请严格遵守。")
	return sb.String()
}

func groupSceneBlock(s *Snapshot) string {
	names := make([]string, 0, len(s.Members))
	for _, m := range s.Members {
		names = append(names, m.Name)
	}
	var sb strings.Builder
	sb.WriteString("【群聊场景】\n")
	sb.WriteString(fmt.Sprintf("这是群聊「%s」，用户「%s」和以下成员都在群里：%s。\n",
		s.Actor.Name, s.User.DisplayName(), strings.Join(names, "、")))
	sb.WriteString("请先针对本回合刚刚出现的最新对话进行回应，然后再表达你自己的看法。")
	return sb.String()
}

func memoryTableSection(table string) string {
	if strings.TrimSpace(table) == "" {
		return ""
	}
	return "【记忆表格】\n以下表格记录了本段对话的关键信息，内容以表格为准：\n" + strings.TrimSpace(table)
}

func liveFactsSection(live models.LiveFacts) string {
	if live.WallClock.IsZero() && live.Music == nil {
		return ""
	}
	var lines []string
	if !live.WallClock.IsZero() {
		lines = append(lines, fmt.Sprintf("现在的时间是 %s。", live.WallClock.Format(wallClockLayout)))
	}
	if live.Music != nil && live.Music.Song != "" {
		line := fmt.Sprintf("用户正在听《%s》", live.Music.Song)
		if live.Music.LyricLine != "" {
			line += fmt.Sprintf("，当前歌词：%s", live.Music.LyricLine)
		}
		lines = append(lines, line+"。")
	}
	return section("【当前状态】", strings.Join(lines, "\n"))
}

// --- Forum post generation ---

// Generic commenter roles picked at random for generated posts; the
// manual-post kind draws from the widened set.
var (
	forumCommenterRoles  = []string{"杠精", "CP头子", "乐子人", "理性分析党"}
	manualCommenterRoles = []string{"杠精", "CP头子", "乐子人", "理性分析党", "颜狗", "吃瓜群众"}
)

// ForumPostInput carries everything the forum post prompt needs.
type ForumPostInput struct {
	Actor        *models.Actor
	User         models.UserProfile
	RelationTag  string
	RelationDesc string
	Hashtag      string
	PostCount    int
	History      []models.Message
	Contacts     []*models.Actor // the user's other individual contacts
	Manual       bool
	Rand         *rand.Rand
}

func (in *ForumPostInput) rng() *rand.Rand {
	if in.Rand != nil {
		return in.Rand
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// commenterPlan names the generic roles and friend contacts a generated
// comment section should use.
type commenterPlan struct {
	roles   []string
	friends []*models.Actor
}

func pickCommenters(r *rand.Rand, roles []string, contacts []*models.Actor) commenterPlan {
	plan := commenterPlan{}

	n := 1 + r.Intn(3)
	perm := r.Perm(len(roles))
	for _, i := range perm[:n] {
		plan.roles = append(plan.roles, roles[i])
	}

	if len(contacts) > 0 && r.Intn(2) == 0 {
		m := 1 + r.Intn(3)
		if m > len(contacts) {
			m = len(contacts)
		}
		perm := r.Perm(len(contacts))
		for _, i := range perm[:m] {
			plan.friends = append(plan.friends, contacts[i])
		}
	}
	return plan
}

func (p commenterPlan) describe() string {
	var sb strings.Builder
	sb.WriteString("评论区由以下评论者组成：\n")
	for _, role := range p.roles {
		sb.WriteString(fmt.Sprintf("- 路人「%s」（commenter_type 填 \"%s\"）\n", role, role))
	}
	for _, f := range p.friends {
		sb.WriteString(fmt.Sprintf("- 好友「%s」（commenter_type 固定填 \"好友\"），人设：%s\n",
			f.Name, strings.TrimSpace(f.Persona)))
	}
	return sb.String()
}

// BuildForumPost assembles the JSON-only forum post generation prompt.
func BuildForumPost(in ForumPostInput) Request {
	roles := forumCommenterRoles
	if in.Manual {
		roles = manualCommenterRoles
	}
	plan := pickCommenters(in.rng(), roles, in.Contacts)

	count := in.PostCount
	if count <= 0 {
		count = 1
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("你是「%s」。%s\n", in.Actor.Name, strings.TrimSpace(in.Actor.Persona)))
	sb.WriteString(fmt.Sprintf("你和用户「%s」的关系是「%s」。", in.User.DisplayName(), in.RelationTag))
	if in.RelationDesc != "" {
		sb.WriteString(in.RelationDesc)
	}
	sb.WriteString("\n")
	if in.Hashtag != "" {
		sb.WriteString(fmt.Sprintf("帖子话题标签：#%s\n", in.Hashtag))
	}
	sb.WriteString(fmt.Sprintf("请以这个身份生成 %d 条论坛帖子，每条帖子附带评论区。\n", count))
	sb.WriteString(plan.describe())
	sb.WriteString(`只输出 JSON，不要输出任何其他内容。格式：
{"relation_tag":"...","posts":[{"author_type":"...","post_content":"...","image_description":"...","comments":[{"commenter_name":"...","commenter_type":"...","comment_content":"..."}]}]}`)

	msgs := []ChatMessage{{Role: "user", Content: forumHistoryBlock(in.History) + "请按要求生成帖子。"}}
	return Request{System: sb.String(), Messages: msgs}
}

func forumHistoryBlock(history []models.Message) string {
	rendered := RenderHistory(tail(history, models.DefaultContextMessageCount), HistoryOptions{})
	if len(rendered) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("以下是你和用户最近的对话，供参考语气和近况：\n")
	for _, m := range rendered {
		sb.WriteString(m.Role + ": " + m.Content + "\n")
	}
	sb.WriteString("\n")
	return sb.String()
}

// --- Forum reply / @-mention ---

// ForumReplyInput carries the post body and comment chain so the model
// has full context for a reply.
type ForumReplyInput struct {
	Actor       *models.Actor
	User        models.UserProfile
	PostContent string
	Comments    []models.ForumComment
	UserComment string
	MentionedBy string // commenter who @-ed the actor, mention kind only
}

// BuildForumReply assembles the free-text prompt for the post author
// replying to the user's comment.
func BuildForumReply(in ForumReplyInput) Request {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("你是帖子作者「%s」。%s\n", in.Actor.Name, strings.TrimSpace(in.Actor.Persona)))
	sb.WriteString("请以帖子作者的身份回复用户的评论。只输出回复正文，不要输出任何格式标记。")

	msgs := []ChatMessage{{Role: "user", Content: forumThreadBlock(in) +
		fmt.Sprintf("用户「%s」评论道：%s\n请回复这条评论。", in.User.DisplayName(), in.UserComment)}}
	return Request{System: sb.String(), Messages: msgs}
}

// BuildForumMention assembles the free-text prompt for an @-ed actor
// replying to the comment that mentioned it.
func BuildForumMention(in ForumReplyInput) Request {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("你是「%s」。%s\n", in.Actor.Name, strings.TrimSpace(in.Actor.Persona)))
	sb.WriteString("有人在帖子的评论里 @ 了你。请以你的身份回复那条评论。只输出回复正文，不要输出任何格式标记。")

	msgs := []ChatMessage{{Role: "user", Content: forumThreadBlock(in) +
		fmt.Sprintf("「%s」在评论中 @ 了你：%s\n请回复这条评论。", in.MentionedBy, in.UserComment)}}
	return Request{System: sb.String(), Messages: msgs}
}

func forumThreadBlock(in ForumReplyInput) string {
	var sb strings.Builder
	sb.WriteString("帖子正文：\n" + strings.TrimSpace(in.PostContent) + "\n\n")
	if len(in.Comments) > 0 {
		sb.WriteString("已有评论：\n")
		for _, c := range in.Comments {
			sb.WriteString(fmt.Sprintf("%s（%s）：%s\n", c.CommenterName, c.CommenterType, c.CommentContent))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// --- Moments ---

// BuildMomentContent assembles the prompt for a short moment text in the
// actor's voice, suitable for pairing with an image.
func BuildMomentContent(actor *models.Actor, history []models.Message, n int) Request {
	if n <= 0 {
		n = models.DefaultContextMessageCount
	}
	system := fmt.Sprintf("你是「%s」。%s\n请发一条不超过50个字的动态，风格要符合你的人设，内容适合配图。只输出动态正文。",
		actor.Name, strings.TrimSpace(actor.Persona))

	msgs := RenderHistory(tail(history, n), HistoryOptions{})
	msgs = append(msgs, ChatMessage{Role: "user", Content: "请根据以上近况发一条动态。"})
	return Request{System: system, Messages: msgs}
}

// BuildImageKeywords assembles the keyword-extraction prompt used to
// search an accompanying image for a moment.
func BuildImageKeywords(text string) Request {
	return Request{
		System: "Extract 3-5 English keywords that describe an image matching the text. Output only the keywords separated by spaces, no explanation.",
		Messages: []ChatMessage{{Role: "user", Content: text}},
	}
}

// MomentCommentsInput carries the moment body and candidate commenters.
type MomentCommentsInput struct {
	Actor    *models.Actor
	User     models.UserProfile
	Content  string
	Contacts []*models.Actor
	Rand     *rand.Rand
}

// BuildMomentComments assembles the JSON-only moment comment prompt.
// Commenter composition follows the forum policy.
func BuildMomentComments(in MomentCommentsInput) Request {
	r := in.Rand
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	plan := pickCommenters(r, forumCommenterRoles, in.Contacts)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("「%s」发布了一条动态。请为这条动态生成评论区。\n", in.Actor.Name))
	sb.WriteString(plan.describe())
	sb.WriteString("每条评论不少于15个汉字。\n")
	sb.WriteString(`只输出 JSON，不要输出任何其他内容。格式：
{"comments":[{"author":"...","content":"..."}]}`)

	msgs := []ChatMessage{{Role: "user", Content: "动态内容：\n" + strings.TrimSpace(in.Content) + "\n请生成评论。"}}
	return Request{System: sb.String(), Messages: msgs}
}

// --- Memory-table update ---

// BuildMemoryTableUpdate assembles the standalone table refresh prompt.
// The history must already be transformed the same way chat history is.
func BuildMemoryTableUpdate(table string, history []ChatMessage, now time.Time) Request {
	if strings.TrimSpace(table) == "" {
		table = DefaultMemoryTable
	}

	var sb strings.Builder
	sb.WriteString("你负责维护本段对话的记忆表格。\n\n")
	sb.WriteString("【当前记忆表格】\n" + strings.TrimSpace(table) + "\n\n")
	sb.WriteString("【更新规则】\n")
	sb.WriteString("1. 从最近的对话中识别新的重要事实并写入表格。\n")
	sb.WriteString(fmt.Sprintf("2. 更新【现在】表格中的地点、人物、时间；现在的时间是 %s。\n", now.Format(wallClockLayout)))
	sb.WriteString("3. 更新【重要物品】表格中的条目。\n")
	sb.WriteString("4. 其他内容保持原样，不要改动。\n")
	sb.WriteString("5. 只输出完整的更新后 markdown 表格，不要输出任何其他内容。")

	msgs := append([]ChatMessage{}, history...)
	msgs = append(msgs, ChatMessage{Role: "user", Content: "请根据以上对话输出更新后的完整记忆表格。"})
	return Request{System: sb.String(), Messages: msgs}
}

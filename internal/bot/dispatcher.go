package bot

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"chatops-bot/pkg/logging"
)

// cmdRegex 匹配包含命令的消息
//
// 命令名与 @bot 后缀大小写不敏感，命令名后允许跟参数文本。
var cmdRegex = regexp.MustCompile(`^/(?is)(?P<cmd>[A-Z0-9_]+)(@(?P<bot>[A-Z0-9_]+))?(\s.*$|$)`)

// Action 一个可调用的命令动作
type Action interface {
	// Name 命令名，不含斜杠
	Name() string

	// Help 一行帮助文本
	Help() string

	// Hidden 是否在帮助列表中隐藏
	Hidden() bool

	// Invoke 执行动作
	Invoke(ctx context.Context, c *Context) error
}

// MatchCommand 判断消息文本是否为命令
//
// 带 @bot 后缀的命令只在后缀与本机器人名一致时匹配，
// 群里多个机器人共存时互不抢答。返回命令名与参数文本。
func MatchCommand(text, botName string) (cmd, args string, ok bool) {
	groups := cmdRegex.FindStringSubmatch(strings.TrimSpace(text))
	if groups == nil {
		return "", "", false
	}

	cmd = groups[cmdRegex.SubexpIndex("cmd")]
	bot := groups[cmdRegex.SubexpIndex("bot")]
	if bot != "" && !strings.EqualFold(bot, botName) {
		return "", "", false
	}

	args = strings.TrimSpace(groups[len(groups)-1])
	return cmd, args, true
}

// Dispatcher 命令派发器
type Dispatcher struct {
	actions []Action
	log     *logging.Logger
}

// NewDispatcher 创建命令派发器
func NewDispatcher(log *logging.Logger, actions ...Action) *Dispatcher {
	return &Dispatcher{actions: actions, log: log}
}

// Register 追加动作，帮助类动作需要先拿到派发器再注册自身
func (d *Dispatcher) Register(actions ...Action) {
	d.actions = append(d.actions, actions...)
}

// Actions 已注册的动作列表
func (d *Dispatcher) Actions() []Action {
	return d.actions
}

// Dispatch 调用匹配的动作，未注册的命令静默忽略
//
// 动作中的 panic 在此处兜底恢复，单个命令的缺陷不能拖垮
// 整个更新处理循环。
func (d *Dispatcher) Dispatch(ctx context.Context, c *Context, cmd string) (err error) {
	var action Action
	for _, a := range d.actions {
		if strings.EqualFold(a.Name(), cmd) {
			action = a
			break
		}
	}
	if action == nil {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			d.log.Error("Command action panicked", "command", action.Name(), "panic", fmt.Sprint(r))
			err = fmt.Errorf("command /%s panicked: %v", action.Name(), r)
		}
	}()

	if err := action.Invoke(ctx, c); err != nil {
		return fmt.Errorf("failed to invoke command /%s: %w", action.Name(), err)
	}
	return nil
}

// buildHelpList 生成可见命令的帮助列表
func buildHelpList(actions []Action) string {
	var lines []string
	for _, a := range actions {
		if a.Hidden() {
			continue
		}
		lines = append(lines, fmt.Sprintf("/%s: <i>%s</i>", a.Name(), a.Help()))
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

package session

// QueuedCommands 尚未被 actor 取走的命令数
func (o *Orchestrator) QueuedCommands() int {
	o.cmds.mu.Lock()
	defer o.cmds.mu.Unlock()
	return len(o.cmds.queue)
}

// PendingExpiries 已到期但 actor 尚未处理的截止通知数
func (o *Orchestrator) PendingExpiries() int {
	return len(o.expired)
}

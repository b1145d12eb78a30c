// =============================================================================
// 文件: internal/conn/fsm.go
// 描述: 面向连接层 - 显式状态转移表
// =============================================================================
package conn

// transitions 状态转移表
// 每个合法 (状态, 事件) 对恰好对应一个后继状态；表中没有的组合一律
// 原样忽略，连接保持当前状态并计数。动作 (发送 SYN-ACK 等) 由事件
// 处理方执行，表只负责状态演进。
var transitions = map[State]map[Event]State{
	StateClosed: {
		EvListen:  StateListen,
		EvConnect: StateSynSent,
	},
	StateListen: {
		EvRecvSyn: StateSynRcvd,
	},
	StateSynSent: {
		EvRecvSynAck: StateEstablished,
	},
	StateSynRcvd: {
		EvRecvAck: StateEstablished,
	},
	StateEstablished: {
		EvClose:   StateFinWait1,
		EvRecvFin: StateCloseWait,
	},
	StateFinWait1: {
		EvRecvAck: StateFinWait2,
	},
	StateFinWait2: {
		EvRecvFin: StateTimeWait,
	},
	StateCloseWait: {
		EvClose: StateLastAck,
	},
	StateLastAck: {
		EvRecvAck: StateClosed,
	},
	StateTimeWait: {
		EvTimeout: StateClosed,
	},
}

// nextState 查询转移表
func nextState(s State, e Event) (State, bool) {
	row, ok := transitions[s]
	if !ok {
		return s, false
	}
	next, ok := row[e]
	if !ok {
		return s, false
	}
	return next, true
}

// stepLocked 应用一个状态机事件 (需要持有锁)
// 非法组合不改变状态，只计数。返回是否发生了转移。
func (c *Conn) stepLocked(e Event) bool {
	next, ok := nextState(c.state, e)
	if !ok {
		c.stats.IllegalTransitions++
		return false
	}
	c.state = next
	return true
}

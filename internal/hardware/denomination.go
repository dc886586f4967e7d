package hardware

import "sort"

// DenominationTable 面额表：设备上报的面额码（下标）到金额的映射。
// 金额用最小货币单位表示。
type DenominationTable []int64

// Value 根据面额码取金额，码越界返回0
func (t DenominationTable) Value(code byte) int64 {
	if int(code) >= len(t) {
		return 0
	}
	return t[code]
}

// payoutItem 出币计划中的一项
type payoutItem struct {
	code  byte  // 面额码
	value int64 // 单枚金额
	count int   // 出币数量
}

// planPayout 按库存贪心拆分金额，面额从大到小。
// 返回出币计划与剩余无法凑出的金额。
func planPayout(table DenominationTable, inventory []uint16, amount int64) ([]payoutItem, int64) {
	type denom struct {
		code  byte
		value int64
	}
	denoms := make([]denom, 0, len(table))
	for code, value := range table {
		if value > 0 {
			denoms = append(denoms, denom{code: byte(code), value: value})
		}
	}
	sort.Slice(denoms, func(i, j int) bool {
		return denoms[i].value > denoms[j].value
	})

	var plan []payoutItem
	remaining := amount
	for _, d := range denoms {
		if remaining <= 0 {
			break
		}
		var avail int
		if int(d.code) < len(inventory) {
			avail = int(inventory[d.code])
		}
		if avail == 0 {
			continue
		}
		need := int(remaining / d.value)
		if need > avail {
			need = avail
		}
		if need > 0 {
			plan = append(plan, payoutItem{code: d.code, value: d.value, count: need})
			remaining -= int64(need) * d.value
		}
	}

	return plan, remaining
}

// canPayout 查询库存能否精确凑出金额。
// 沿用出币计划的贪心拆分，是保守近似：可能把非贪心拆分能凑出的
// 金额判为不可出（面额 {4,3} 凑 6 时贪心先取 4 而失败），
// 只会多拒不会少找。
func canPayout(table DenominationTable, inventory []uint16, amount int64) bool {
	if amount <= 0 {
		return true
	}
	_, remaining := planPayout(table, inventory, amount)
	return remaining == 0
}

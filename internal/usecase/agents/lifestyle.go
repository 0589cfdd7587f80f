package agents

import (
	"github.com/SUOKE2024/suoke-life-sub002/internal/domain"
)

var lifestyleRules = []Rule{
	{
		Intent:     "health_plan",
		Capability: "soer.health_plan.create",
		Keywords:   []string{"计划", "目标", "打卡", "plan"},
		Reply:      "已为您制定四周健康计划。",
	},
	{
		Intent:     "lifestyle",
		Capability: "soer.lifestyle.recommend",
		Keywords:   []string{"作息", "睡眠", "熬夜", "生活", "习惯", "运动", "锻炼", "八段锦", "太极"},
		Reply:      "根据节气与作息规律给出生活方式建议。",
	},
	{
		Intent:     "nutrition",
		Capability: "soer.nutrition.guide",
		Keywords:   []string{"饮食", "营养", "吃", "减肥", "体重", "diet"},
		Reply:      "为您整理了当季饮食与营养搭配建议。",
	},
	{
		Intent:     "emotion_support",
		Capability: "soer.emotion.support",
		Keywords:   []string{"焦虑", "压力", "心情", "情绪", "难过", "烦躁", "担心"},
		Reply:      "情志调摄很重要，我们一起做些放松练习。",
	},
}

var lifestyleFallback = Rule{
	Intent:     "daily_companion",
	Capability: "soer.lifestyle.recommend",
	Reply:      "我是索儿，陪您一起养成健康的生活习惯。",
}

// NewLifestyle builds the soer agent: daily life, diet and exercise planning.
func NewLifestyle(opts domain.AgentOptions) (domain.Agent, error) {
	return newLifecycle(domain.AgentLifestyle, opts,
		NewClassifier(lifestyleRules, lifestyleFallback), respondLifestyle), nil
}

func respondLifestyle(cls Classification, _ string, rc domain.RequestContext) domain.Payload {
	recommendation := "早睡早起，每天步行六千步以上。"
	switch cls.Intent {
	case "nutrition":
		recommendation = "三餐定时，少食生冷油腻。"
	case "emotion_support":
		recommendation = "每天安排十分钟腹式呼吸或冥想。"
	case "health_plan":
		recommendation = "每周复盘一次计划完成度。"
	}
	return domain.Payload{
		Intent: cls.Intent,
		Reply:  cls.Reply,
		Fields: fields(map[string]string{
			"summary":        cls.Reply,
			"recommendation": recommendation,
			"prior":          priorSummary(rc),
		}),
	}
}

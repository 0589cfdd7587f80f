package agents

import (
	"github.com/SUOKE2024/suoke-life-sub002/internal/domain"
)

var knowledgeRules = []Rule{
	{
		Intent:     "knowledge_query",
		Capability: "laoke.knowledge.query",
		Keywords:   []string{"什么是", "为什么", "知识", "原理", "经络", "穴位", "中药", "阴阳", "五行", "黄帝内经"},
		Reply:      "以下是相关的中医理论要点与出处。",
	},
	{
		Intent:     "education",
		Capability: "laoke.education.content",
		Keywords:   []string{"学习", "课程", "教程", "入门", "考试", "course"},
		Reply:      "为您整理了循序渐进的中医学习路径。",
	},
	{
		Intent:     "community",
		Capability: "laoke.community.discuss",
		Keywords:   []string{"社区", "讨论", "分享", "交流", "经验"},
		Reply:      "已为您找到相关话题的社区讨论。",
	},
}

var knowledgeFallback = Rule{
	Intent:     "general_knowledge",
	Capability: "laoke.knowledge.query",
	Reply:      "我是老克，可以为您讲解中医养生知识。",
}

// NewKnowledge builds the laoke agent: TCM knowledge and education.
func NewKnowledge(opts domain.AgentOptions) (domain.Agent, error) {
	return newLifecycle(domain.AgentKnowledge, opts,
		NewClassifier(knowledgeRules, knowledgeFallback), respondKnowledge), nil
}

func respondKnowledge(cls Classification, _ string, rc domain.RequestContext) domain.Payload {
	source := "《中医基础理论》"
	if cls.Intent == "community" {
		source = "索克社区"
	}
	return domain.Payload{
		Intent: cls.Intent,
		Reply:  cls.Reply,
		Fields: fields(map[string]string{
			"summary":        cls.Reply,
			"source":         source,
			"recommendation": "结合自身体质理解理论，避免照搬方剂。",
			"prior":          priorSummary(rc),
		}),
	}
}

package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供 app/domain/类别/来源/命中状态字段，供拦截日志复用。
func RequestFields(app, domain, class, source string, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"app":       app,
		"domain":    domain,
		"class":     class,
		"source":    source,
		"cache_hit": cacheHit,
	}
}

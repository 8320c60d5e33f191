package config

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// LoadSSMParameters reads every parameter below parameterPath from AWS SSM
// Parameter Store and returns them keyed by the upper-cased last path segment,
// e.g. /blogmagic/prod/openai_api_key -> OPENAI_API_KEY.
func LoadSSMParameters(ctx context.Context, region, parameterPath string) (map[string]string, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return fetchSSMParameters(ctx, ssm.NewFromConfig(awsCfg), parameterPath)
}

func fetchSSMParameters(ctx context.Context, client ssm.GetParametersByPathAPIClient, parameterPath string) (map[string]string, error) {
	params := make(map[string]string)
	paginator := ssm.NewGetParametersByPathPaginator(client, &ssm.GetParametersByPathInput{
		Path:           aws.String(parameterPath),
		Recursive:      aws.Bool(true),
		WithDecryption: aws.Bool(true),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("get parameters by path %s: %w", parameterPath, err)
		}
		for _, p := range page.Parameters {
			name := aws.ToString(p.Name)
			if name == "" {
				continue
			}
			key := strings.ToUpper(path.Base(name))
			params[key] = aws.ToString(p.Value)
		}
	}
	return params, nil
}

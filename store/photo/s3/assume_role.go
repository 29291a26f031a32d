package s3

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// assumeRoleProvider returns credentials obtained by assuming roleARN with
// the base config's identity.
func assumeRoleProvider(base aws.Config, o *options) aws.CredentialsProvider {
	return stscreds.NewAssumeRoleProvider(sts.NewFromConfig(base), o.roleARN, func(ro *stscreds.AssumeRoleOptions) {
		ro.RoleSessionName = o.roleSessionName
		if o.externalID != "" {
			ro.ExternalID = aws.String(o.externalID)
		}
	})
}

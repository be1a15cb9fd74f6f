package parser

import (
	"strings"
)

// cvPromptTemplate 唯一的 %s 占位符是规范化后的简历全文。
// 姓名、邮箱、电话三个字段最容易出错，需要模型反复核对。
const cvPromptTemplate = `Please carefully extract the following CRITICAL information from this CV and format as JSON. These 3 fields are the most important - please verify them multiple times:
1. Full Name - This must be the candidate's complete name
2. Email - This must be a valid email address format. IMPORTANT: Check that the email does not contain any phone numbers before or within it. If an email starts with 9-12 consecutive numbers, it is a phone number, not an email (e.g., '0123456789email@domain.com' is invalid). The email should only contain letters, numbers, dots, and @ symbol in standard email format.
3. Phone Number - This must be a valid phone number format. Ensure this is completely separate from the email address.
For any field where data is not found, use 'NO DATA'. Gender must be either 'Male' or 'Female'. All values should be returned as plain strings, not as arrays or lists. Please ensure the response is in valid JSON format. The CV may contain Vietnamese text, please preserve Vietnamese characters.
Please extract:
- key: 'Full Name' (CRITICAL - verify carefully)
- key: 'Email' (CRITICAL - verify carefully, must not contain phone number)
- key: 'Phone Number' (CRITICAL - verify carefully, must not be part of email)
- key: 'Job Title'
- key: 'Date of Birth' (format: DD/MM/YYYY)
- key: 'Gender' (only 'Male' or 'Female' or 'NO DATA')
- key: 'Work Experience' (with dates, companies, positions, and descriptions. Return as a single string, not an array)
- key: 'Education' (with dates, institutions, degree, and level. Return as a single string, not an array)
- key: 'Note' (include achievements, activities, and other data not related to the above fields. Return as a single string)
CV text:
%s`

// BuildCVPrompt 生成发送给模型的完整 prompt。
// 自定义模板必须恰好包含一个 %s，模板中的其他 % 原样保留。
func BuildCVPrompt(template, cvText string) string {
	if strings.TrimSpace(template) == "" {
		template = cvPromptTemplate
	}
	return strings.Replace(template, "%s", cvText, 1)
}
